package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logicDeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupctl_logic_deployments_total",
			Help: "Total number of logic contracts deployed",
		},
		[]string{"layer"},
	)

	bundleSealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupctl_bundle_seals_total",
			Help: "Total number of versioned bundles sealed",
		},
		[]string{"layer"},
	)

	upgradeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupctl_upgrade_calls_total",
			Help: "Total number of proxy upgrade calls sent",
		},
		[]string{"layer"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupctl_runs_total",
			Help: "Total number of orchestration runs by operation and result",
		},
		[]string{"operation", "result"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollupctl_run_duration_seconds",
			Help:    "Orchestration run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)
)
