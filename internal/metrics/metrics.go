// Package metrics exposes Prometheus counters for meal registration.
package metrics

import (
	"net/http"

	"github.com/Freeeeeet/meal_registry/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meal_registry"

type Metrics struct {
	registrations *prometheus.CounterVec
	undos         prometheus.Counter
	gatherer      prometheus.Gatherer
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Consumption registration attempts by meal kind and outcome.",
		}, []string{"meal", "outcome"}),
		undos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumptions_undone_total",
			Help:      "Consumptions removed by undo.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.registrations, m.undos)
	return m
}

// RegistrationOutcome counts one registration attempt
func (m *Metrics) RegistrationOutcome(meal model.MealKind, outcome string) {
	m.registrations.WithLabelValues(string(meal), outcome).Inc()
}

// ConsumptionUndone counts one removed consumption
func (m *Metrics) ConsumptionUndone() {
	m.undos.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
