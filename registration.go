package session

import (
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const (
	MinAge = 18
	MaxAge = 120
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix.
var DefaultPhoneRegion = "US"

// Gender as collected by the registration form.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// IsValid checks the gender against the known values.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

// ImageKind labels an uploaded dealer image.
type ImageKind string

const (
	ImageLogo     ImageKind = "logo"
	ImageLicense  ImageKind = "license"
	ImageShowroom ImageKind = "showroom"
)

// ImageRef points to an image uploaded before registration.
type ImageRef struct {
	Kind ImageKind `json:"kind"`
	URL  string    `json:"url"`
}

// Account holds the fields every registration carries.
type Account struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age"`
	Gender    Gender `json:"gender"`
	Phone     string `json:"phone"`
}

// DealerProfile is the company sub profile of a dealer account.
type DealerProfile struct {
	CompanyName        string     `json:"company_name"`
	RegistrationNumber string     `json:"registration_number"`
	Address            string     `json:"address"`
	City               string     `json:"city,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Website            string     `json:"website,omitempty"`
	Images             []ImageRef `json:"images,omitempty"`
}

// RegistrationData is either an *IndividualRegistration or a
// *DealerRegistration. Use a type switch to handle both.
type RegistrationData interface {
	Variant() AccountType
	AccountFields() Account
	Validate() error
	registration()
}

// IndividualRegistration registers a private seller or buyer.
type IndividualRegistration struct {
	Account
}

// DealerRegistration registers a dealer with its company profile.
type DealerRegistration struct {
	Account
	Dealer DealerProfile
}

var (
	_ RegistrationData = (*IndividualRegistration)(nil)
	_ RegistrationData = (*DealerRegistration)(nil)
)

func (*IndividualRegistration) registration() {}
func (*DealerRegistration) registration()     {}

func (*IndividualRegistration) Variant() AccountType { return AccountIndividual }
func (*DealerRegistration) Variant() AccountType     { return AccountDealer }

func (r *IndividualRegistration) AccountFields() Account { return r.Account }
func (r *DealerRegistration) AccountFields() Account     { return r.Account }

// Validate checks the account fields and normalizes the phone number.
func (r *IndividualRegistration) Validate() error {
	fields := map[string]string{}
	r.Account.validate(fields)
	return registrationError(fields)
}

// Validate checks the account and dealer fields and normalizes phone numbers.
func (r *DealerRegistration) Validate() error {
	fields := map[string]string{}
	r.Account.validate(fields)
	r.Dealer.validate(fields)
	return registrationError(fields)
}

func (r *IndividualRegistration) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AccountType AccountType `json:"account_type"`
		Account
	}{AccountIndividual, r.Account})
}

func (r *DealerRegistration) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AccountType AccountType `json:"account_type"`
		Account
		Dealer DealerProfile `json:"dealer"`
	}{AccountDealer, r.Account, r.Dealer})
}

func (a *Account) validate(fields map[string]string) {
	a.Username = strings.TrimSpace(a.Username)
	a.Email = strings.TrimSpace(a.Email)

	err := validation.ValidateStruct(a,
		validation.Field(&a.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&a.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&a.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&a.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Age, validation.Required, validation.Min(MinAge), validation.Max(MaxAge)),
		validation.Field(&a.Gender, validation.Required, validation.By(validateGender)),
	)
	collectFieldErrors(err, "", fields)

	phone, err := NormalizePhone(a.Phone)
	if err != nil {
		fields["phone"] = err.Error()
		return
	}
	a.Phone = phone
}

func (d *DealerProfile) validate(fields map[string]string) {
	err := validation.ValidateStruct(d,
		validation.Field(&d.CompanyName, validation.Required, validation.Length(2, 200)),
		validation.Field(&d.RegistrationNumber, validation.Required, validation.Length(2, 64)),
		validation.Field(&d.Address, validation.Required, validation.Length(2, 300)),
		validation.Field(&d.Website, is.URL),
	)
	collectFieldErrors(err, "dealer", fields)

	if d.Phone != "" {
		phone, err := NormalizePhone(d.Phone)
		if err != nil {
			fields["dealer.phone"] = err.Error()
		} else {
			d.Phone = phone
		}
	}

	for i, img := range d.Images {
		key := fmt.Sprintf("dealer.images.%d", i)
		switch img.Kind {
		case ImageLogo, ImageLicense, ImageShowroom:
		default:
			fields[key+".kind"] = "must be one of logo, license, showroom"
		}
		if err := validation.Validate(img.URL, validation.Required, is.URL); err != nil {
			fields[key+".url"] = err.Error()
		}
	}
}

// NormalizePhone parses a phone number and returns it in E.164 form.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("cannot be blank")
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", fmt.Errorf("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validateGender(value any) error {
	g, _ := value.(Gender)
	if g == "" || g.IsValid() {
		return nil
	}
	return fmt.Errorf("must be one of male, female, other")
}

func validateGenderPtr(value any) error {
	g, ok := value.(*Gender)
	if !ok || g == nil {
		return nil
	}
	return validateGender(*g)
}

func collectFieldErrors(err error, prefix string, fields map[string]string) {
	if err == nil {
		return
	}
	verr := validationErrorFrom(err, "")
	v, ok := verr.(*ValidationError)
	if !ok {
		fields[strings.TrimSuffix(prefix, ".")] = err.Error()
		return
	}
	for k, msg := range v.Fields {
		if prefix != "" {
			k = prefix + "." + k
		}
		fields[k] = msg
	}
}

func registrationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "Invalid registration data", Fields: fields}
}
