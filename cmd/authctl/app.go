package main

import (
	"context"
	"fmt"
	"io"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/activitymap"
	"github.com/goliatone/go-auth-session/client"
	"github.com/goliatone/go-auth-session/config"
	"github.com/goliatone/go-auth-session/metrics"
	"github.com/goliatone/go-auth-session/storage/filestore"
	"github.com/goliatone/go-auth-session/storage/redisstore"
	"github.com/goliatone/go-auth-session/storage/sqlstore"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

// App holds the wired session stack of one invocation.
type App struct {
	cfg      *config.Config
	logs     loggers
	out      io.Writer
	errOut   io.Writer
	fs       afero.Fs
	closers  []func() error
	storage  session.Storage
	tokens   *session.TokenStore
	cache    *session.Cache
	bus      *session.SessionRequiredBus
	client   *client.Client
	manager  *session.Manager
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logs loggers, fs afero.Fs, out, errOut io.Writer) (*App, error) {
	a := &App{
		cfg:      cfg,
		logs:     logs,
		out:      out,
		errOut:   errOut,
		fs:       fs,
		bus:      session.NewSessionRequiredBus(),
		registry: prometheus.NewRegistry(),
	}

	storage, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.storage = storage

	a.tokens = session.NewTokenStore(storage,
		session.WithExpiryLeeway(cfg.Session.ExpiryLeeway),
		session.WithTokenStoreLogger(logs.get("tokens")),
	)
	a.cache = session.NewCache(storage, session.WithCacheLogger(logs.get("cache")))

	a.client, err = client.New(cfg.Backend.URL, a.tokens,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithUserAgent(cfg.Backend.UserAgent),
		client.WithSessionRequiredBus(a.bus),
		client.WithLogger(logs.get("client")),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, err := metrics.NewSink(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager = session.NewManager(a.client, a.tokens, a.cache,
		session.WithMaxRetries(cfg.Session.MaxRetries),
		session.WithRetryDelay(cfg.Session.RetryDelay),
		session.WithLogoutTimeout(cfg.Session.LogoutTimeout),
		session.WithProfileGatePolicy(cfg.Session.GatePolicy()),
		session.WithSessionRequiredBus(a.bus),
		session.WithNotifier(consoleNotifier{w: errOut}),
		session.WithActivitySink(session.MultiActivitySink{sink, activityLog(logs.get("activity"))}),
		session.WithLogger(logs.get("session")),
	)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (session.Storage, error) {
	sc := a.cfg.Storage
	switch sc.Kind {
	case config.StorageMemory:
		return session.NewMemoryStorage(), nil

	case config.StorageFile:
		return filestore.New(a.fs, sc.Path), nil

	case config.StorageRedis:
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{sc.RedisAddr},
			DB:    sc.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		store := redisstore.New(rdb, redisstore.WithPrefix(sc.Prefix))
		if err := store.Ping(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case config.StorageSQL:
		db, err := sqlstore.OpenSQLite(sc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		store := sqlstore.New(db, sqlstore.WithScope(sc.Scope))
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, goerrors.New("unknown storage kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": sc.Kind})
	}
}

// Close detaches the manager and releases storage connections.
func (a *App) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logs.get("app").Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Notify(_ context.Context, note session.Notification) {
	fmt.Fprintf(n.w, "%s: %s\n", note.Severity, note.Message)
}

func activityLog(logger session.Logger) session.ActivitySink {
	return activitymap.NewSink(func(n activitymap.Normalized) error {
		logger.Debug("session activity",
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_id", n.ObjectID,
			"metadata", n.Metadata,
		)
		return nil
	}, activitymap.WithDefaultChannel("authctl"))
}
