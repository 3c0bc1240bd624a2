// Package httpapi exposes the auth engine over HTTP. It owns request
// decoding and validation, engine error to status code mapping, and the
// OAuth2 state cookie handshake for external login.
package httpapi

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/gearmarket/auth"
	"github.com/gearmarket/auth/metrics/export/prometheus"
)

// Config tunes the HTTP surface. The zero value is usable.
type Config struct {
	// ReadTimeout and WriteTimeout bound each request. Zero means 15s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SecureCookies marks the state and refresh cookies Secure. Leave
	// false only behind plain-HTTP development setups.
	SecureCookies bool

	// SentryEnabled reports unexpected handler errors to sentry. The
	// caller is responsible for sentry.Init.
	SentryEnabled bool

	Logger *log.Logger
}

// Server is the HTTP front of the auth engine.
type Server struct {
	engine *auth.Engine
	app    *fiber.App
	cfg    Config
	logger *log.Logger
	sentry bool
}

// NewServer wires all routes onto a fresh fiber app.
func NewServer(engine *auth.Engine, cfg Config) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		sentry: cfg.SentryEnabled,
	}

	s.app = fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.fiberError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(prometheus.NewExporter(s.engine).Handler()))

	v1 := s.app.Group("/v1")
	v1.Post("/signup", s.handleSignup)
	v1.Get("/verify-email/:token", s.handleVerifyEmail)
	v1.Post("/login", s.handleLogin)
	v1.Post("/logout", s.handleLogout)
	v1.Post("/token/refresh", s.handleRefresh)
	v1.Post("/password-reset", s.handlePasswordReset)
	v1.Post("/password-reset/:token", s.handlePasswordResetConfirm)
	v1.Get("/external/login", s.handleExternalLogin)
	v1.Get("/external/callback", s.handleExternalCallback)
	v1.Get("/me", s.RequireAuth, s.handleMe)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown or a listener error.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// fiberError handles errors escaping handlers, including fiber's own
// routing errors. Engine errors never reach here; handlers map those.
func (s *Server) fiberError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return writeError(c, code, statusMessage(code))
}

func statusMessage(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "not found"
	case fiber.StatusMethodNotAllowed:
		return "method not allowed"
	default:
		return "internal error"
	}
}
