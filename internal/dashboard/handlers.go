package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"weather-monitor/internal/report"
	"weather-monitor/internal/weather"
)

// alertsQuery bounds the ?limit parameter.
type alertsQuery struct {
	Limit int `validate:"min=1,max=500"`
}

// configRequest is the body of PUT /api/config. An omitted
// consecutiveUpdates keeps the current value.
type configRequest struct {
	HighTemp           *float64 `json:"highTemp" validate:"required"`
	LowTemp            *float64 `json:"lowTemp" validate:"required"`
	ConsecutiveUpdates *int     `json:"consecutiveUpdates" validate:"omitempty,min=1"`
}

func (r configRequest) apply(cur weather.AlertConfig) weather.AlertConfig {
	next := weather.AlertConfig{
		HighTemp:           *r.HighTemp,
		LowTemp:            *r.LowTemp,
		ConsecutiveUpdates: cur.ConsecutiveUpdates,
	}
	if r.ConsecutiveUpdates != nil {
		next.ConsecutiveUpdates = *r.ConsecutiveUpdates
	}
	return next
}

func (s *server) state(c *fiber.Ctx) error {
	return c.JSON(s.current())
}

func (s *server) alerts(c *fiber.Ctx) error {
	q := alertsQuery{Limit: c.QueryInt("limit", s.opts.RecentAlerts)}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.current().RecentAlerts(q.Limit))
}

func (s *server) getConfig(c *fiber.Ctx) error {
	return c.JSON(s.src.AlertConfig())
}

func (s *server) putConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	cfg, err := s.updateConfig(req)
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (s *server) submitConfigForm(c *fiber.Ctx) error {
	req, err := parseConfigForm(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if _, err := s.updateConfig(req); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *server) updateConfig(req configRequest) (weather.AlertConfig, error) {
	if err := validate.Struct(req); err != nil {
		return weather.AlertConfig{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	cfg := req.apply(s.src.AlertConfig())
	if err := validate.Struct(cfg); err != nil {
		return weather.AlertConfig{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.src.SetAlertConfig(cfg); err != nil {
		return weather.AlertConfig{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return cfg, nil
}

func parseConfigForm(c *fiber.Ctx) (configRequest, error) {
	var req configRequest
	for _, field := range []struct {
		key string
		dst **float64
	}{
		{"highTemp", &req.HighTemp},
		{"lowTemp", &req.LowTemp},
	} {
		raw := strings.TrimSpace(c.FormValue(field.key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("%s: %w", field.key, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return req, fmt.Errorf("%s: must be a finite number", field.key)
		}
		*field.dst = &v
	}
	if raw := strings.TrimSpace(c.FormValue("consecutiveUpdates")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("consecutiveUpdates: %w", err)
		}
		req.ConsecutiveUpdates = &n
	}
	return req, nil
}

func (s *server) chart(c *fiber.Ctx) error {
	var buf bytes.Buffer
	err := report.RenderTrendPNG(&buf, s.current().History)
	if errors.Is(err, report.ErrNotEnoughData) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(buf.Bytes())
}
