// Package config loads the settings shared by the authctl and devbackend
// commands: built in defaults, then an optional YAML or JSON file, then
// command line flags.
package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Storage kinds.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

const delim = "."

type Config struct {
	Backend Backend `koanf:"backend"`
	Storage Storage `koanf:"storage"`
	Session Session `koanf:"session"`
	Log     Log     `koanf:"log"`
}

type Backend struct {
	URL       string        `koanf:"url"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

type Storage struct {
	Kind      string `koanf:"kind"`
	Path      string `koanf:"path"`
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`
	Prefix    string `koanf:"prefix"`
	DSN       string `koanf:"dsn"`
	Scope     string `koanf:"scope"`
}

type Session struct {
	MaxRetries    int           `koanf:"max_retries"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	LogoutTimeout time.Duration `koanf:"logout_timeout"`
	ExpiryLeeway  time.Duration `koanf:"expiry_leeway"`
	ProfileGate   string        `koanf:"profile_gate"`
}

type Log struct {
	Level   string `koanf:"level"`
	Verbose bool   `koanf:"verbose"`
}

// Defaults returns the flattened default values.
func Defaults() map[string]any {
	return map[string]any{
		"backend.url":            "http://localhost:8572",
		"backend.timeout":        "15s",
		"backend.user_agent":     "authctl",
		"storage.kind":           StorageFile,
		"storage.path":           defaultStoragePath(),
		"storage.redis_addr":     "localhost:6379",
		"storage.redis_db":       0,
		"storage.prefix":         "authctl",
		"storage.dsn":            "file:authctl.db?cache=shared",
		"storage.scope":          "default",
		"session.max_retries":    session.DefaultMaxRetries,
		"session.retry_delay":    session.DefaultRetryDelay.String(),
		"session.logout_timeout": session.DefaultLogoutTimeout.String(),
		"session.expiry_leeway":  "0s",
		"session.profile_gate":   session.ProfileGateFromProfile.String(),
		"log.level":              "info",
		"log.verbose":            false,
	}
}

// RegisterFlags adds the overridable settings to fs. Flag names match the
// configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML or JSON configuration file")
	fs.String("backend.url", "", "auth backend base URL")
	fs.Duration("backend.timeout", 0, "HTTP timeout for backend calls")
	fs.String("storage.kind", "", "session storage: memory, file, redis or sql")
	fs.String("storage.path", "", "session file for the file storage")
	fs.String("storage.redis_addr", "", "redis address for the redis storage")
	fs.String("storage.dsn", "", "sqlite DSN for the sql storage")
	fs.Int("session.max_retries", 0, "initialization attempts on server errors")
	fs.Duration("session.retry_delay", 0, "wait between initialization attempts")
	fs.String("session.profile_gate", "", "profile check failure policy: from_profile, fail_open, fail_closed")
	fs.String("log.level", "", "log level")
	fs.BoolP("log.verbose", "v", false, "verbose logging")
}

// Load builds a Config from defaults, the file at path (if any) and the
// changed flags in fs (if any).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(delim)

	if err := k.Load(confmap.Provider(Defaults(), delim), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load config defaults")
	}

	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, delim, k), nil); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read flags")
		}
		k.Delete("config")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, goerrors.New("unsupported config file format", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"path": path})
	}
}

// Validate checks the decoded values.
func (c *Config) Validate() error {
	fields := map[string]string{}

	collect := func(prefix string, err error) {
		if err == nil {
			return
		}
		if verrs, ok := err.(validation.Errors); ok {
			for k, v := range verrs {
				fields[prefix+"."+k] = v.Error()
			}
			return
		}
		fields[prefix] = err.Error()
	}

	collect("backend", validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.URL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Backend.Timeout, validation.Min(time.Duration(0))),
	))

	collect("storage", validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Kind, validation.Required,
			validation.In(StorageMemory, StorageFile, StorageRedis, StorageSQL)),
		validation.Field(&c.Storage.Path, requiredFor(c.Storage.Kind, StorageFile)...),
		validation.Field(&c.Storage.RedisAddr, requiredFor(c.Storage.Kind, StorageRedis)...),
		validation.Field(&c.Storage.DSN, requiredFor(c.Storage.Kind, StorageSQL)...),
	))

	collect("session", validation.ValidateStruct(&c.Session,
		validation.Field(&c.Session.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.Session.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Session.LogoutTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Session.ExpiryLeeway, validation.Min(time.Duration(0))),
		validation.Field(&c.Session.ProfileGate, validation.By(profileGate)),
	))

	if len(fields) == 0 {
		return nil
	}
	return goerrors.New("invalid configuration", goerrors.CategoryValidation).
		WithMetadata(map[string]any{"fields": fields})
}

// GatePolicy returns the parsed profile gate policy.
func (s Session) GatePolicy() session.ProfileGatePolicy {
	return session.ParseProfileGatePolicy(s.ProfileGate)
}

func requiredFor(kind, want string) []validation.Rule {
	if kind != want {
		return nil
	}
	return []validation.Rule{validation.Required}
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

func profileGate(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if session.ParseProfileGatePolicy(s).String() != s {
		switch s {
		case "open", "closed":
			return nil
		}
		return errors.New("must be from_profile, fail_open or fail_closed")
	}
	return nil
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authctl-session.json"
	}
	return filepath.Join(dir, "authctl", "session.json")
}
