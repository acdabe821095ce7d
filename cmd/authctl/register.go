package main

import (
	"context"
	"strings"

	session "github.com/goliatone/go-auth-session"
	"github.com/spf13/pflag"
)

func registerFlags(fs *pflag.FlagSet) {
	fs.String("type", string(session.AccountIndividual), "account type: individual or dealer")
	fs.String("username", "", "username")
	fs.String("email", "", "email")
	fs.String("password", "", "password")
	fs.String("first-name", "", "first name")
	fs.String("last-name", "", "last name")
	fs.Int("age", 0, "age")
	fs.String("gender", "", "male, female or other")
	fs.String("phone", "", "phone number")

	fs.String("company", "", "dealer company name")
	fs.String("registration-number", "", "dealer company registration number")
	fs.String("address", "", "dealer address")
	fs.String("city", "", "dealer city")
	fs.String("dealer-phone", "", "dealer phone number")
	fs.String("website", "", "dealer website")
	fs.StringSlice("image", nil, "uploaded dealer image as kind=url (logo, license, showroom)")
}

func registrationFromFlags(fs *pflag.FlagSet) (session.RegistrationData, error) {
	get := func(name string) string {
		v, _ := fs.GetString(name)
		return strings.TrimSpace(v)
	}
	age, _ := fs.GetInt("age")

	acc := session.Account{
		Username:  get("username"),
		Email:     get("email"),
		Password:  get("password"),
		FirstName: get("first-name"),
		LastName:  get("last-name"),
		Age:       age,
		Gender:    session.Gender(strings.ToLower(get("gender"))),
		Phone:     get("phone"),
	}

	switch session.AccountType(strings.ToLower(get("type"))) {
	case session.AccountIndividual:
		return &session.IndividualRegistration{Account: acc}, nil
	case session.AccountDealer:
		images, err := parseImages(fs)
		if err != nil {
			return nil, err
		}
		return &session.DealerRegistration{
			Account: acc,
			Dealer: session.DealerProfile{
				CompanyName:        get("company"),
				RegistrationNumber: get("registration-number"),
				Address:            get("address"),
				City:               get("city"),
				Phone:              get("dealer-phone"),
				Website:            get("website"),
				Images:             images,
			},
		}, nil
	default:
		return nil, &session.ValidationError{
			Message: "Invalid registration",
			Fields:  map[string]string{"type": "must be individual or dealer"},
		}
	}
}

func parseImages(fs *pflag.FlagSet) ([]session.ImageRef, error) {
	raw, _ := fs.GetStringSlice("image")
	refs := make([]session.ImageRef, 0, len(raw))
	for _, item := range raw {
		kind, url, ok := strings.Cut(item, "=")
		if !ok || url == "" {
			return nil, &session.ValidationError{
				Message: "Invalid registration",
				Fields:  map[string]string{"image": "expected kind=url, got " + item},
			}
		}
		refs = append(refs, session.ImageRef{Kind: session.ImageKind(kind), URL: url})
	}
	return refs, nil
}

func runRegister(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	data, err := registrationFromFlags(fs)
	if err != nil {
		return err
	}

	a.manager.Initialize(ctx)
	if err := a.manager.Register(ctx, data); err != nil {
		return err
	}
	a.printJSON(a.manager.Snapshot())
	return nil
}
