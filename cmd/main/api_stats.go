package main

import (
	"log/slog"
	"net/http"

	"github.com/CTAG07/cadence/pkg/markov"
)

// GlobalStatsSummary provides a high-level overview of every model.
type GlobalStatsSummary struct {
	Models            int `json:"models"`
	StoredTransitions int `json:"stored_transitions"`
	LoadedModels      int `json:"loaded_models"`
	Observations      int `json:"observations"` // Summed over loaded models only.
	Nodes             int `json:"nodes"`        // Summed over loaded models only.
}

// ModelStats pairs a model name with its statistics.
type ModelStats struct {
	Name string `json:"name"`
	markov.Stats
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	lib    *Library
	logger *slog.Logger
}

func NewStatsAPI(lib *Library, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		lib:    lib,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/models", s.handleModels)
}

// handleSummary aggregates stored metadata with the live stats of loaded models.
func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}

	infos, err := s.lib.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list models for summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve stats summary")
		return
	}

	summary := GlobalStatsSummary{Models: len(infos)}
	for _, info := range infos {
		summary.StoredTransitions += info.Transitions
	}
	for _, name := range s.lib.Loaded() {
		stats, err := s.lib.Stats(r.Context(), name)
		if err != nil {
			continue // Removed concurrently.
		}
		summary.LoadedModels++
		summary.Observations += stats.Observations
		summary.Nodes += stats.Nodes
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// handleModels returns the live stats of every stored model, loading each
// one that is not in memory yet.
func (s *StatsAPI) handleModels(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}

	infos, err := s.lib.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list models for stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve model stats")
		return
	}

	results := make([]ModelStats, 0, len(infos))
	for _, info := range infos {
		stats, err := s.lib.Stats(r.Context(), info.Name)
		if err != nil {
			s.logger.WarnContext(r.Context(), "Failed to compute model stats", "name", info.Name, "error", err)
			continue
		}
		results = append(results, ModelStats{Name: info.Name, Stats: stats})
	}
	respondWithJSON(w, http.StatusOK, results)
}
