// Command devbackend serves the in-memory auth backend used to try authctl
// locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/internal/devserver"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type options struct {
	Addr       string        `koanf:"addr"`
	SigningKey string        `koanf:"signing_key"`
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	Seed       []string      `koanf:"seed"`
}

func loadOptions(args []string) (options, error) {
	fs := pflag.NewFlagSet("devbackend", pflag.ContinueOnError)
	fs.String("addr", "", "listen address")
	fs.String("signing_key", "", "HS256 signing key")
	fs.String("issuer", "", "token issuer")
	fs.Duration("access_ttl", 0, "access token lifetime")
	fs.Duration("refresh_ttl", 0, "refresh token lifetime")
	fs.StringSlice("seed", nil, "seed an account as email:password (repeatable)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	k := koanf.New(".")
	defaults := map[string]any{
		"addr":        ":8572",
		"signing_key": "devserver-insecure-key",
		"issuer":      devserver.DefaultIssuer,
		"access_ttl":  devserver.DefaultAccessTTL.String(),
		"refresh_ttl": devserver.DefaultRefreshTTL.String(),
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return options{}, err
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return options{}, err
	}

	var opts options
	if err := k.Unmarshal("", &opts); err != nil {
		return options{}, err
	}
	return opts, nil
}

func seedAccount(srv *devserver.Server, seed string) error {
	email, password, ok := strings.Cut(seed, ":")
	if !ok || email == "" || password == "" {
		return errors.New("seed must be email:password", errors.CategoryBadInput).
			WithMetadata(map[string]any{"seed": seed})
	}
	name, _, _ := strings.Cut(email, "@")
	_, err := srv.SeedUser(session.Account{
		Username:  name,
		Email:     email,
		Password:  password,
		FirstName: name,
		LastName:  "Dev",
		Age:       30,
		Gender:    session.GenderOther,
		Phone:     "+16502530000",
	}, session.RoleUser)
	return err
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("devbackend"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
	logger := lgr.GetLogger("server")

	opts, err := loadOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	srv := devserver.New(devserver.Config{
		SigningKey: []byte(opts.SigningKey),
		Issuer:     opts.Issuer,
		AccessTTL:  opts.AccessTTL,
		RefreshTTL: opts.RefreshTTL,
		Logger:     logger,
	})

	for _, seed := range opts.Seed {
		if err := seedAccount(srv, seed); err != nil {
			logger.Error("could not seed account", "seed", seed, "error", err)
			os.Exit(1)
		}
		email, _, _ := strings.Cut(seed, ":")
		logger.Info("seeded account", "email", email)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("dev backend listening", "addr", opts.Addr)
	if err := srv.Listen(opts.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
