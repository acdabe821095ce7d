package metrics_test

import (
	"context"

	session "github.com/goliatone/go-auth-session"
)

type noopClient struct{}

func (noopClient) Login(context.Context, session.Credentials) (*session.AuthResult, error) {
	return nil, nil
}

func (noopClient) Register(context.Context, session.RegistrationData) (*session.AuthResult, error) {
	return nil, nil
}

func (noopClient) RefreshToken(context.Context) (*session.CredentialPair, error) { return nil, nil }
func (noopClient) GetProfile(context.Context) (*session.User, error)             { return nil, nil }

func (noopClient) UpdateProfile(context.Context, session.ProfilePatch) (*session.User, error) {
	return nil, nil
}

func (noopClient) ChangePassword(context.Context, string, string) error { return nil }
func (noopClient) ForgotPassword(context.Context, string) error         { return nil }
func (noopClient) Logout(context.Context) error                         { return nil }
