// Package server exposes the processor, subject registration and fix intake over HTTP.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/fieldtrack/trackcheck/internal/config"
	"github.com/fieldtrack/trackcheck/internal/dispatcher"
	"github.com/fieldtrack/trackcheck/internal/geo"
	"github.com/fieldtrack/trackcheck/internal/logging"
	"github.com/fieldtrack/trackcheck/internal/monitor"
	"github.com/fieldtrack/trackcheck/internal/worker"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

// StatusProvider reports the service status snapshot.
type StatusProvider interface {
	GetStatus() monitor.Status
}

// CommandDispatcher routes raw device commands.
type CommandDispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
	HasHandler(command string) bool
}

// Dependencies holds everything the HTTP handlers call into
type Dependencies struct {
	Worker     *worker.Manager
	Status     StatusProvider
	Dispatcher CommandDispatcher
	LogManager *logging.SlogManager
	// AccessLog receives one line per request; nil disables access logging
	AccessLog io.Writer
	Version   string
}

// Server wraps the fiber app
type Server struct {
	app      *fiber.App
	deps     Dependencies
	validate *validator.Validate
}

// New builds the fiber app and registers all routes
func New(deps Dependencies, cfg config.ServerConfig) *Server {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	s := &Server{
		deps:     deps,
		validate: validator.New(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "trackcheck " + deps.Version,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.errorHandler,
		Immutable:             true,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(requestContext)
	if deps.AccessLog != nil {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
			Output: deps.AccessLog,
		}))
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	s.routes()
	return s
}

const requestIDHeader = "X-Request-ID"

// requestContext tags the request's user context with an id and route so
// that records logged further down carry them.
func requestContext(c *fiber.Ctx) error {
	id := c.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)
	c.SetUserContext(logging.AppendCtx(c.UserContext(),
		slog.String("request_id", id),
		slog.String("method", c.Method()),
		slog.String("path", c.Path())))
	return c.Next()
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)

	api := s.app.Group("/api/v1")
	{
		api.Get("/status", s.status)
		api.Post("/subjects", s.addSubject)
		api.Post("/points", s.addPoints)
		api.Post("/tracks/annotate", s.annotate)
		api.Post("/commands", s.dispatch)

		api.Get("/tracks/:subject/:day", s.getTrack)
		api.Get("/tracks/:subject/:day/geojson", s.getTrackGeoJSON)
		api.Get("/tracks/:subject/:day/chart", s.getTrackChart)
	}
}

// App exposes the fiber app, mainly for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving on addr
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var fe *fiber.Error
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &verrs),
		errors.Is(err, worker.ErrInvalidInput),
		errors.Is(err, dispatcher.ErrTooFewArgs),
		errors.Is(err, geo.ErrInvalidCoordinates):
		return fiber.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, core.ErrTrackingDisabled):
		return fiber.StatusForbidden
	case errors.Is(err, dispatcher.ErrClosed), errors.Is(err, dispatcher.ErrQueueFull):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()
	if code == fiber.StatusInternalServerError {
		s.deps.LogManager.Logger().ErrorContext(c.UserContext(), "request failed", "error", err)
		message = "Internal Server Error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
