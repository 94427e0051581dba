package application

import "github.com/prometheus/client_golang/prometheus"

var (
	pollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambu_display_poll_total",
			Help: "Status polls by result",
		},
		[]string{"result"},
	)
	coverFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambu_display_cover_fetch_total",
			Help: "Cover image downloads by result",
		},
		[]string{"result"},
	)
	onboardingState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambu_display_onboarding_state",
			Help: "Onboarding state (0=idle, 1=waiting for scan, 2=code requested, 3=authenticated)",
		},
	)
	refreshSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bambu_display_refresh_seconds",
			Help:    "Time spent in one display refresh",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MetricsCollectors returns the collectors of the display module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		pollTotal,
		coverFetchTotal,
		onboardingState,
		refreshSeconds,
	}
}
