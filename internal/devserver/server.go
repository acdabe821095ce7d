// Package devserver is an in-memory auth backend speaking the REST surface
// the client package consumes. It backs integration tests and the
// devbackend command and is not meant for production use.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/client"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultIssuer     = "devserver"
)

// Config configures a Server.
type Config struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
	Clock      func() time.Time
	Logger     session.Logger
	Routes     client.Routes
}

func (c Config) withDefaults() Config {
	if len(c.SigningKey) == 0 {
		c.SigningKey = []byte("devserver-insecure-key")
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = session.NopLogger()
	}
	if c.Routes == (client.Routes{}) {
		c.Routes = client.DefaultRoutes()
	}
	return c
}

// Server is the fiber app plus its in-memory state.
type Server struct {
	cfg    Config
	app    *fiber.App
	tokens *tokenIssuer

	mu      sync.Mutex
	nextID  int
	byEmail map[string]*account
	byID    map[session.UserID]*account
	resets  []string
	faults  map[string][]int
	calls   map[string]int
}

// New builds a Server with its routes mounted.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:     cfg,
		tokens:  newTokenIssuer(cfg),
		byEmail: make(map[string]*account),
		byID:    make(map[session.UserID]*account),
		faults:  make(map[string][]int),
		calls:   make(map[string]int),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

// App exposes the fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Handler adapts the app to net/http, for httptest servers.
func (s *Server) Handler() http.Handler { return adaptor.FiberApp(s.app) }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops the listener.
func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) routes() {
	r := s.cfg.Routes
	s.app.Use(s.countCalls, s.injectFaults)

	s.app.Post(r.Login, s.login)
	s.app.Post(r.Register, s.register)
	s.app.Post(r.Refresh, s.refresh)
	s.app.Post(r.ForgotPassword, s.forgotPassword)

	s.app.Get(r.ProfileStatus, s.requireBearer, s.profileStatus)
	s.app.Get(r.Profile, s.requireBearer, s.getProfile)
	s.app.Put(r.Profile, s.requireBearer, s.updateProfile)
	s.app.Post(r.ChangePassword, s.requireBearer, s.changePassword)
	s.app.Post(r.Logout, s.requireBearer, s.logout)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	s.cfg.Logger.Error("devserver request failed", "path", c.Path(), "status", code, "error", err)
	return writeError(c, code, err.Error(), nil)
}

func writeError(c *fiber.Ctx, status int, message string, fields map[string]string) error {
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"fields":  fields,
	})
}
