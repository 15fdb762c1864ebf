// Package metrics exposes application counters and gauges through an
// injected sink rather than process-wide globals. Services depend only on
// the Sink interface; the Prometheus registry lives in the composition
// root and is served at /metrics.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acorvin/gamenight/internal/repository"
)

// Counter names incremented by the services. Increments are fire-and-
// forget: they happen after durable writes and never fail a request.
const (
	LoginAttempts    = "login_attempts"
	SuccessfulLogins = "successful_logins"
	FailedLogins     = "failed_logins"
	VotesCast        = "votes_cast"
	PollsCreated     = "polls_created"
)

// Gauge names refreshed from the store on each scrape.
const (
	ActivePolls = "active_polls"
	TotalPolls  = "total_polls"
	TotalVotes  = "total_votes"
	TotalUsers  = "total_users"
)

// Sink is the side-channel the services emit metrics through.
type Sink interface {
	Inc(counter string)
	Set(gauge string, value float64)
}

// Registry is the Prometheus-backed Sink. It owns its own
// prometheus.Registry, so two Registries in one process (e.g. in tests)
// never collide.
type Registry struct {
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

var _ Sink = (*Registry)(nil)

// NewRegistry creates a Registry with every counter and gauge the
// application uses pre-registered under the gamenight_ namespace.
func NewRegistry() *Registry {
	r := &Registry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}

	counters := map[string]string{
		LoginAttempts:    "Number of login attempts",
		SuccessfulLogins: "Number of successful logins",
		FailedLogins:     "Number of failed logins",
		VotesCast:        "Number of votes cast",
		PollsCreated:     "Number of polls created",
	}
	for name, help := range counters {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamenight",
			Name:      name + "_total",
			Help:      help,
		})
		r.reg.MustRegister(c)
		r.counters[name] = c
	}

	gauges := map[string]string{
		ActivePolls: "Number of active polls",
		TotalPolls:  "Total number of polls",
		TotalVotes:  "Total number of votes cast",
		TotalUsers:  "Total number of registered users",
	}
	for name, help := range gauges {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamenight",
			Name:      name,
			Help:      help,
		})
		r.reg.MustRegister(g)
		r.gauges[name] = g
	}

	return r
}

// Inc increments a counter. Unknown names are ignored.
func (r *Registry) Inc(counter string) {
	if c, ok := r.counters[counter]; ok {
		c.Inc()
	}
}

// Set updates a gauge. Unknown names are ignored.
func (r *Registry) Set(gauge string, value float64) {
	if g, ok := r.gauges[gauge]; ok {
		g.Set(value)
	}
}

// Handler returns the /metrics endpoint. Each scrape first refreshes the
// store-derived gauges; a refresh failure is logged and the scrape is
// served with the previous values.
func (r *Registry) Handler(stats repository.StatsSource, logger *slog.Logger) http.Handler {
	promHandler := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := r.refresh(req.Context(), stats); err != nil {
			logger.Warn("failed to refresh metrics gauges", slog.String("error", err.Error()))
		}
		promHandler.ServeHTTP(w, req)
	})
}

func (r *Registry) refresh(ctx context.Context, stats repository.StatsSource) error {
	s, err := stats.Stats(ctx)
	if err != nil {
		return err
	}
	r.Set(ActivePolls, float64(s.ActivePolls))
	r.Set(TotalPolls, float64(s.TotalPolls))
	r.Set(TotalVotes, float64(s.TotalVotes))
	r.Set(TotalUsers, float64(s.TotalUsers))
	return nil
}

// Noop is a Sink that discards everything. Used in tests and as a default
// when no registry is wired.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) Inc(string)          {}
func (Noop) Set(string, float64) {}
