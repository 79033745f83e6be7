package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"weather-monitor/internal/service"
	"weather-monitor/internal/weather"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"temp": func(v float64) string {
		return decimal.NewFromFloat(v).StringFixed(1)
	},
	"clock": func(st *service.State) string {
		if st.UpdatedAt.IsZero() {
			return "never"
		}
		return st.UpdatedAt.Format("2006-01-02 15:04:05 MST")
	},
}).ParseFS(templateFS, "templates/page.html"))

// maxCards is how many city cards the page shows.
const maxCards = 6

type pageData struct {
	Title    string
	State    *service.State
	Cards    []weather.Snapshot
	Alerts   []weather.AlertEvent
	HasChart bool
}

func (s *server) page(c *fiber.Ctx) error {
	st := s.current()
	data := pageData{
		Title:    s.opts.AppName,
		State:    st,
		Cards:    st.LatestSnapshots(maxCards),
		Alerts:   st.RecentAlerts(s.opts.RecentAlerts),
		HasChart: len(st.History) >= 2,
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
