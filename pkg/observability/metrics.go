package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by lifecycle hooks.
type Metrics struct {
	Claims       *prometheus.CounterVec
	RuleRuns     *prometheus.CounterVec
	Turns        *prometheus.CounterVec
	TurnErrors   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	Resets       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_claims_total",
				Help: "Number of queries claimed by a browsable rule",
			},
			[]string{"domain", "rule"},
		),
		RuleRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_rule_runs_total",
				Help: "Number of rule runs by ending",
			},
			[]string{"domain", "rule", "ending"},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_turns_total",
				Help: "Number of answered user inputs",
			},
			[]string{"domain", "understood"},
		),
		TurnErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_turn_errors_total",
				Help: "Number of turns that failed and were apologised for",
			},
			[]string{"domain"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_turn_duration_seconds",
				Help:    "Duration of a turn",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"domain"},
		),
		Resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_resets_total",
				Help: "Number of conversation resets",
			},
			[]string{"domain"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Claims, m.RuleRuns, m.Turns, m.TurnErrors, m.TurnDuration, m.Resets} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnClaim: func(_ context.Context, e *domain.ClaimEvent) {
			m.Claims.WithLabelValues(e.Domain, e.Rule).Inc()
		},
		OnRuleRun: func(_ context.Context, e *domain.RuleEvent) {
			m.RuleRuns.WithLabelValues(e.Domain, e.Rule, string(e.Ending)).Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Domain, strconv.FormatBool(e.Understood)).Inc()
			m.TurnDuration.WithLabelValues(e.Domain).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.TurnErrors.WithLabelValues(e.Domain).Inc()
			}
		},
		OnReset: func(_ context.Context, e *domain.ResetEvent) {
			m.Resets.WithLabelValues(e.Domain).Inc()
		},
	}
}
