// Package dashboard serves the published monitoring state over HTTP.
package dashboard

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"weather-monitor/internal/service"
	"weather-monitor/internal/weather"
)

var validate = validator.New()

// StateSource is the orchestrator surface the dashboard reads and mutates.
type StateSource interface {
	State() *service.State
	AlertConfig() weather.AlertConfig
	SetAlertConfig(cfg weather.AlertConfig) error
}

// Options configure the HTTP server.
type Options struct {
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RecentAlerts is how many alerts the page and /api/alerts show by default.
	RecentAlerts int
}

type server struct {
	src    StateSource
	opts   Options
	logger zerolog.Logger
}

// New builds the fiber app with every dashboard route registered.
func New(src StateSource, opts Options, logger zerolog.Logger) *fiber.App {
	if opts.AppName == "" {
		opts.AppName = "weathermon"
	}
	if opts.RecentAlerts <= 0 {
		opts.RecentAlerts = 5
	}
	s := &server{src: src, opts: opts, logger: logger.With().Str("component", "dashboard").Logger()}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.requestLogger)

	app.Get("/", s.page)
	app.Post("/config", s.submitConfigForm)
	app.Get("/chart.png", s.chart)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": opts.AppName,
		})
	})

	api := app.Group("/api")
	api.Get("/state", s.state)
	api.Get("/alerts", s.alerts)
	api.Get("/config", s.getConfig)
	api.Put("/config", s.putConfig)

	return app
}

func (s *server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func (s *server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")
	return nil
}

func (s *server) current() *service.State {
	if st := s.src.State(); st != nil {
		return st
	}
	return &service.State{Phase: service.PhaseIdle, AlertConfig: s.src.AlertConfig()}
}
