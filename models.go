package session

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// UserID is the backend identifier of a user. It accepts both JSON numbers
// and strings on decode.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

// Int64 returns the numeric form of the id, if it has one.
func (id UserID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// AccountType distinguishes individual sellers from dealers.
type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountDealer     AccountType = "dealer"
)

// User is the authenticated profile.
type User struct {
	ID               UserID         `json:"id"`
	Username         string         `json:"username"`
	Email            string         `json:"email,omitempty"`
	FirstName        string         `json:"first_name,omitempty"`
	LastName         string         `json:"last_name,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	Age              int            `json:"age,omitempty"`
	Gender           Gender         `json:"gender,omitempty"`
	Role             Role           `json:"role,omitempty"`
	AccountType      AccountType    `json:"account_type,omitempty"`
	ProfileCompleted bool           `json:"profile_completed"`
	Dealer           *DealerProfile `json:"dealer,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// AddMetadata sets a metadata attribute.
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}

// Clone returns a deep enough copy for handing out to consumers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Dealer != nil {
		d := *u.Dealer
		d.Images = append([]ImageRef(nil), u.Dealer.Images...)
		c.Dealer = &d
	}
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ProfilePatch carries the profile fields to update. Nil fields are left
// untouched by the backend.
type ProfilePatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Age       *int    `json:"age,omitempty"`
	Gender    *Gender `json:"gender,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.Phone == nil && p.Age == nil && p.Gender == nil
}

// Validate checks the fields present in the patch and normalizes the phone.
func (p *ProfilePatch) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.FirstName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.LastName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&p.Age, validation.Min(MinAge), validation.Max(MaxAge)),
		validation.Field(&p.Gender, validation.By(validateGenderPtr)),
	)
	if err != nil {
		return validationErrorFrom(err, "Invalid profile update")
	}

	if p.Phone != nil {
		normalized, err := NormalizePhone(*p.Phone)
		if err != nil {
			return &ValidationError{
				Message: "Invalid profile update",
				Fields:  map[string]string{"phone": err.Error()},
			}
		}
		p.Phone = &normalized
	}
	return nil
}

// String returns a pointer to s, handy for building patches.
func String(s string) *string { return &s }

// Int returns a pointer to n.
func Int(n int) *int { return &n }
