package session_test

import (
	"encoding/json"
	"testing"

	session "github.com/goliatone/go-auth-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAccount() session.Account {
	return session.Account{
		Username:  "ana",
		Email:     "ana@example.com",
		Password:  "secret-pass",
		FirstName: "Ana",
		LastName:  "Lee",
		Age:       30,
		Gender:    session.GenderFemale,
		Phone:     "(650) 253-0000",
	}
}

func TestIndividualRegistrationValid(t *testing.T) {
	reg := &session.IndividualRegistration{Account: validAccount()}

	require.NoError(t, reg.Validate())
	assert.Equal(t, "+16502530000", reg.Phone)
	assert.Equal(t, session.AccountIndividual, reg.Variant())
}

func TestIndividualRegistrationFieldErrors(t *testing.T) {
	acc := validAccount()
	acc.Username = "a"
	acc.Email = "not-an-email"
	acc.Age = 16
	acc.Gender = "robot"
	acc.Phone = "12"

	err := (&session.IndividualRegistration{Account: acc}).Validate()

	var verr *session.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"username", "email", "age", "gender", "phone"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.NotContains(t, verr.Fields, "password")
}

func TestDealerRegistrationValidatesCompanyAndImages(t *testing.T) {
	reg := &session.DealerRegistration{
		Account: validAccount(),
		Dealer: session.DealerProfile{
			CompanyName: "A",
			Website:     "::not a url",
			Images: []session.ImageRef{
				{Kind: "banner", URL: "https://cdn.example.com/a.png"},
				{Kind: session.ImageLicense},
			},
		},
	}

	err := reg.Validate()

	var verr *session.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "dealer.company_name")
	assert.Contains(t, verr.Fields, "dealer.registration_number")
	assert.Contains(t, verr.Fields, "dealer.address")
	assert.Contains(t, verr.Fields, "dealer.images.0.kind")
	assert.Contains(t, verr.Fields, "dealer.images.1.url")
}

func TestRegistrationVariantsExhaustive(t *testing.T) {
	variants := []session.RegistrationData{
		&session.IndividualRegistration{Account: validAccount()},
		&session.DealerRegistration{Account: validAccount()},
	}

	for _, data := range variants {
		switch v := data.(type) {
		case *session.IndividualRegistration:
			assert.Equal(t, session.AccountIndividual, v.Variant())
		case *session.DealerRegistration:
			assert.Equal(t, session.AccountDealer, v.Variant())
		default:
			t.Fatalf("unexpected variant %T", v)
		}
		assert.Equal(t, "ana", data.AccountFields().Username)
	}
}

func TestRegistrationJSONCarriesAccountType(t *testing.T) {
	reg := &session.DealerRegistration{
		Account: validAccount(),
		Dealer:  session.DealerProfile{CompanyName: "Ana Motors"},
	}

	raw, err := json.Marshal(reg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "dealer", decoded["account_type"])
	assert.Equal(t, "ana", decoded["username"])
	dealer, ok := decoded["dealer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ana Motors", dealer["company_name"])
}

func TestNormalizePhone(t *testing.T) {
	got, err := session.NormalizePhone("+44 20 7946 0958")
	require.NoError(t, err)
	assert.Equal(t, "+442079460958", got)

	_, err = session.NormalizePhone("")
	assert.Error(t, err)

	_, err = session.NormalizePhone("call me")
	assert.Error(t, err)
}

func TestProfilePatchValidate(t *testing.T) {
	patch := session.ProfilePatch{Age: session.Int(12), Email: session.String("bad")}

	err := patch.Validate()

	var verr *session.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "age")
	assert.Contains(t, verr.Fields, "email")

	ok := session.ProfilePatch{LastName: session.String("Lee")}
	assert.NoError(t, ok.Validate())
	assert.False(t, ok.IsEmpty())
	assert.True(t, session.ProfilePatch{}.IsEmpty())
}
