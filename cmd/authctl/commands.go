package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/config"
	"github.com/goliatone/go-auth-session/metrics"
	"github.com/goliatone/go-print"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errNotSignedIn = errors.New("not signed in")

type command struct {
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *App, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"status": {
		summary: "restore the session and print its state",
		flags: func(fs *pflag.FlagSet) {
			fs.Bool("check-profile", false, "ask the backend whether the profile is complete")
		},
		run: runStatus,
	},
	"login": {
		summary: "sign in with email and password",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
			fs.String("password", "", "account password")
			fs.Bool("remember", false, "ask for a long lived session")
		},
		run: runLogin,
	},
	"register": {
		summary: "create an individual or dealer account and sign in",
		flags:   registerFlags,
		run:     runRegister,
	},
	"whoami": {
		summary: "print the signed in user",
		flags: func(fs *pflag.FlagSet) {
			fs.String("require-role", "", "fail unless the user has at least this role")
		},
		run: runWhoami,
	},
	"logout": {
		summary: "sign out and clear the stored session",
		run:     runLogout,
	},
	"update-profile": {
		summary: "change profile fields",
		flags: func(fs *pflag.FlagSet) {
			fs.String("first-name", "", "first name")
			fs.String("last-name", "", "last name")
			fs.String("email", "", "email")
			fs.String("phone", "", "phone number")
			fs.Int("age", 0, "age")
			fs.String("gender", "", "male, female or other")
		},
		run: runUpdateProfile,
	},
	"change-password": {
		summary: "change the password of the signed in user",
		flags: func(fs *pflag.FlagSet) {
			fs.String("current", "", "current password")
			fs.String("new", "", "new password")
		},
		run: runChangePassword,
	},
	"forgot-password": {
		summary: "request a password reset email",
		flags: func(fs *pflag.FlagSet) {
			fs.String("email", "", "account email")
		},
		run: runForgotPassword,
	},
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	return runWith(ctx, args, afero.NewOsFs(), out, errOut)
}

func runWith(ctx context.Context, args []string, fs afero.Fs, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		return exitOK
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(errOut, "unknown command %q\n\n", name)
		usage(errOut)
		return exitUsage
	}

	flags := pflag.NewFlagSet("authctl "+name, pflag.ContinueOnError)
	flags.SetOutput(errOut)
	config.RegisterFlags(flags)
	flags.Bool("metrics", false, "print session metrics to stderr when done")
	if cmd.flags != nil {
		cmd.flags(flags)
	}
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load("", flags)
	if err != nil {
		fmt.Fprintf(errOut, "configuration error: %v\n", err)
		return exitUsage
	}

	logs := loggers{root: newRootLogger(logLevel(cfg.Log.Level, cfg.Log.Verbose))}

	app, err := newApp(ctx, cfg, logs, fs, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitError
	}
	defer app.Close()

	err = cmd.run(ctx, app, flags)

	if dump, _ := flags.GetBool("metrics"); dump {
		if merr := metrics.WriteText(errOut, app.registry); merr != nil {
			logs.get("metrics").Warn("could not write metrics", "error", merr)
		}
	}

	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", session.UserMessage(err))
		return exitError
	}
	return exitOK
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: authctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
}

func (a *App) printJSON(v any) {
	fmt.Fprintln(a.out, print.MaybePrettyJSON(v))
}

type statusView struct {
	session.Snapshot
	ProfileComplete *bool `json:"profile_complete,omitempty"`
}

func runStatus(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	view := statusView{Snapshot: a.manager.Initialize(ctx)}
	if check, _ := fs.GetBool("check-profile"); check && view.User != nil {
		complete := a.manager.ProfileComplete(ctx)
		view.ProfileComplete = &complete
	}
	a.printJSON(view)
	return nil
}

func runLogin(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	email, _ := fs.GetString("email")
	password, _ := fs.GetString("password")
	remember, _ := fs.GetBool("remember")

	a.manager.Initialize(ctx)
	if err := a.manager.Login(ctx, email, password, remember); err != nil {
		return err
	}
	a.printJSON(a.manager.Snapshot())
	return nil
}

func runWhoami(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	snap := a.manager.Initialize(ctx)
	if snap.User == nil {
		return errNotSignedIn
	}

	if raw, _ := fs.GetString("require-role"); raw != "" {
		role, ok := session.ParseRole(raw)
		if !ok {
			return &session.ValidationError{Message: fmt.Sprintf("unknown role %q", raw)}
		}
		if err := session.RequireRole(snap, role); err != nil {
			return err
		}
	}

	a.printJSON(snap.User)
	return nil
}

func runLogout(ctx context.Context, a *App, _ *pflag.FlagSet) error {
	a.manager.Initialize(ctx)
	a.manager.Logout(ctx)
	a.printJSON(a.manager.Snapshot())
	return nil
}

func runUpdateProfile(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	var patch session.ProfilePatch
	str := func(name string) *string {
		if !fs.Changed(name) {
			return nil
		}
		v, _ := fs.GetString(name)
		return session.String(v)
	}

	patch.FirstName = str("first-name")
	patch.LastName = str("last-name")
	patch.Email = str("email")
	patch.Phone = str("phone")
	if fs.Changed("age") {
		age, _ := fs.GetInt("age")
		patch.Age = session.Int(age)
	}
	if g := str("gender"); g != nil {
		gender := session.Gender(strings.ToLower(*g))
		patch.Gender = &gender
	}

	if a.manager.Initialize(ctx).User == nil {
		return errNotSignedIn
	}
	if err := a.manager.UpdateProfile(ctx, patch); err != nil {
		return err
	}
	a.printJSON(a.manager.User())
	return nil
}

func runChangePassword(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	current, _ := fs.GetString("current")
	next, _ := fs.GetString("new")

	if a.manager.Initialize(ctx).User == nil {
		return errNotSignedIn
	}
	return a.manager.UpdatePassword(ctx, current, next)
}

func runForgotPassword(ctx context.Context, a *App, fs *pflag.FlagSet) error {
	email, _ := fs.GetString("email")
	if err := a.manager.ForgotPassword(ctx, email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If the account exists, a reset link is on its way.")
	return nil
}
