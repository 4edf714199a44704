package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trainedWindowsTotal counts (order+1)-windows recorded per model
	trainedWindowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_trained_windows_total",
		Help: "Total training windows recorded by model",
	}, []string{"model"})

	// trainDuration tracks how long a training request takes end to end
	trainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadence_train_duration_seconds",
		Help:    "Training duration in seconds, including persistence",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"model"})

	// generatedSymbolsTotal counts symbols produced per model
	generatedSymbolsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_generated_symbols_total",
		Help: "Total symbols generated by model",
	}, []string{"model"})

	// prunedTransitionsTotal counts transitions removed by pruning
	prunedTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_pruned_transitions_total",
		Help: "Total transitions removed by pruning, by model",
	}, []string{"model"})

	// loadedModels tracks how many models are held in memory
	loadedModels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_loaded_models",
		Help: "Number of models currently loaded in memory",
	})

	// apiRequestsTotal counts API requests by route and status code
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_api_requests_total",
		Help: "Total API requests by route and status code",
	}, []string{"route", "code"})

	// apiRequestDuration tracks API latency
	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadence_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
