package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	IdentityResolutions *prometheus.CounterVec
	LookupOutcomes      *prometheus.CounterVec
	SignedURLs          *prometheus.CounterVec
	Completions         *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		IdentityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_portal_identity_resolutions_total",
			Help: "Principals resolved to a lookup email, by source (claim, user_details, guest_heuristic, failed).",
		}, []string{"source"}),
		LookupOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_portal_lookups_total",
			Help: "Worker dispatch lookups by outcome.",
		}, []string{"outcome"}),
		SignedURLs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_portal_signed_urls_total",
			Help: "Attachment signed URLs by result (issued, omitted).",
		}, []string{"result"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_portal_completions_total",
			Help: "Job completion notifications by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.IdentityResolutions, m.LookupOutcomes, m.SignedURLs, m.Completions)
	return m
}

func (m *Metrics) IncIdentity(source string) {
	m.IdentityResolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) IncLookup(outcome string) {
	m.LookupOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddSignedURLs(issued, omitted int) {
	m.SignedURLs.WithLabelValues("issued").Add(float64(issued))
	m.SignedURLs.WithLabelValues("omitted").Add(float64(omitted))
}

func (m *Metrics) IncCompletion(outcome string) {
	m.Completions.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
