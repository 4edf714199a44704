package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/cadence/pkg/markov"
	"github.com/CTAG07/cadence/pkg/store"
)

// MarkovAPI holds the dependencies for the Markov model API handlers.
type MarkovAPI struct {
	lib    *Library
	cm     *ConfigManager
	logger *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(lib *Library, cm *ConfigManager, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		lib:    lib,
		cm:     cm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/markov endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/markov/models/", m.handleModelByName)
	mux.HandleFunc("/api/markov/import", m.handleImport)
}

type CreateModelRequest struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type PruneRequest struct {
	MinCount int `json:"min_count"`
}

// GenerateResponse is the JSON body returned by the generate endpoint.
type GenerateResponse struct {
	Symbols []string `json:"symbols"`
	Text    string   `json:"text"`
}

// errorStatus maps library and model errors onto HTTP status codes.
func errorStatus(err error) int {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrModelExists), errors.Is(err, markov.ErrNotTrained):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidModelName),
		errors.Is(err, markov.ErrInvalidOrder),
		errors.Is(err, markov.ErrInvalidState),
		errors.Is(err, markov.ErrOrderMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithLibraryError logs server-side failures and writes err with its mapped status.
func (m *MarkovAPI) respondWithLibraryError(w http.ResponseWriter, r *http.Request, action, name string, err error) {
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		m.logger.ErrorContext(r.Context(), "Failed to "+action, "name", name, "error", err)
	}
	respondWithError(w, code, fmt.Sprintf("Failed to %s: %v", action, err))
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *MarkovAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeMarkovRead) {
			return
		}
		models, err := m.lib.List(r.Context())
		if err != nil {
			m.respondWithLibraryError(w, r, "retrieve models", "", err)
			return
		}
		if models == nil {
			models = []store.ModelInfo{}
		}
		respondWithJSON(w, http.StatusOK, models)

	case http.MethodPost:
		if !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Order == 0 {
			req.Order = m.cm.Get().Model.DefaultOrder
		}

		newModel, err := m.lib.Create(r.Context(), req.Name, req.Order)
		if err != nil {
			m.respondWithLibraryError(w, r, "create model", req.Name, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, newModel)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleModelByName routes actions for a specific model, e.g., train, generate, prune, export, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/markov/models/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/markov/models/{name}
		switch r.Method {
		case http.MethodGet:
			if !requireScope(w, r, scopeMarkovRead) {
				return
			}
			info, err := m.lib.Info(r.Context(), modelName)
			if err != nil {
				m.respondWithLibraryError(w, r, "get model", modelName, err)
				return
			}
			respondWithJSON(w, http.StatusOK, info)
		case http.MethodDelete:
			if !requireScope(w, r, scopeMarkovWrite) {
				return
			}
			if err := m.lib.Remove(r.Context(), modelName); err != nil {
				m.respondWithLibraryError(w, r, "remove model", modelName, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		body := http.MaxBytesReader(w, r.Body, m.cm.Get().Server.MaxBodyBytes)
		windows, err := m.lib.Train(r.Context(), modelName, body)
		if err != nil {
			m.respondWithLibraryError(w, r, "train model", modelName, err)
			return
		}
		respondWithJSON(w, http.StatusAccepted, map[string]int{"windows": windows})

	case "generate":
		if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
			return
		}
		m.handleGenerate(w, r, modelName)

	case "prune":
		if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		var req PruneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		removed, err := m.lib.Prune(r.Context(), modelName, req.MinCount)
		if err != nil {
			m.respondWithLibraryError(w, r, "prune model", modelName, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})

	case "stats":
		if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
			return
		}
		stats, err := m.lib.Stats(r.Context(), modelName)
		if err != nil {
			m.respondWithLibraryError(w, r, "get model stats", modelName, err)
			return
		}
		respondWithJSON(w, http.StatusOK, stats)

	case "export":
		if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
			return
		}
		if _, err := m.lib.Get(r.Context(), modelName); err != nil {
			m.respondWithLibraryError(w, r, "export model", modelName, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if err := m.lib.Export(r.Context(), modelName, w); err != nil {
			m.logger.ErrorContext(r.Context(), "Failed to export model", "name", modelName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleGenerate serves GET /api/markov/models/{name}/generate. Query
// parameters: length, temperature, top_k, seed, state (comma separated) and
// stream. With stream=true the rendered text is flushed symbol by symbol.
func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request, modelName string) {
	modelCfg := m.cm.Get().Model
	q := r.URL.Query()

	length := modelCfg.DefaultLength
	if v := q.Get("length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "length must be a positive integer")
			return
		}
		length = n
	}
	if length > modelCfg.MaxLength {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("length must not exceed %d", modelCfg.MaxLength))
		return
	}

	opts := []markov.GenerateOption[string]{
		markov.WithTemperature[string](modelCfg.Temperature),
		markov.WithTopK[string](modelCfg.TopK),
	}
	if v := q.Get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "temperature must be a number")
			return
		}
		opts = append(opts, markov.WithTemperature[string](t))
	}
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 0 {
			respondWithError(w, http.StatusBadRequest, "top_k must be a non-negative integer")
			return
		}
		opts = append(opts, markov.WithTopK[string](k))
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "seed must be an unsigned integer")
			return
		}
		opts = append(opts, markov.WithSeed[string](seed))
	}
	if v := q.Get("state"); v != "" {
		opts = append(opts, markov.WithState(strings.Split(v, ",")))
	}

	if q.Get("stream") == "true" {
		m.streamGenerate(w, r, modelName, length, opts)
		return
	}

	symbols, err := m.lib.Generate(r.Context(), modelName, length, opts...)
	if err != nil {
		m.respondWithLibraryError(w, r, "generate", modelName, err)
		return
	}
	respondWithJSON(w, http.StatusOK, GenerateResponse{
		Symbols: symbols,
		Text:    m.lib.Tokenizer().Render(symbols),
	})
}

func (m *MarkovAPI) streamGenerate(w http.ResponseWriter, r *http.Request, modelName string, length int, opts []markov.GenerateOption[string]) {
	model, err := m.lib.Get(r.Context(), modelName)
	if err != nil {
		m.respondWithLibraryError(w, r, "generate", modelName, err)
		return
	}
	stream, err := model.GenerateStream(r.Context(), length, opts...)
	if err != nil {
		m.respondWithLibraryError(w, r, "generate", modelName, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, no-cache")
	flusher, canFlush := w.(http.Flusher)

	tok := m.lib.Tokenizer()
	var prev string
	var count int
	for symbol := range stream {
		if count > 0 {
			_, _ = w.Write([]byte(tok.Separator(prev, symbol)))
		}
		if _, err = w.Write([]byte(symbol)); err != nil {
			return // Stop if the client closes the connection.
		}
		if canFlush {
			flusher.Flush()
		}
		prev = symbol
		count++
	}
	if count > 0 {
		_, _ = w.Write([]byte(tok.EOC(prev)))
	}
	generatedSymbolsTotal.WithLabelValues(modelName).Add(float64(count))
}

// handleImport imports a model from an uploaded JSON file into the model
// named by the `name` query parameter.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
		return
	}

	name := r.URL.Query().Get("name")
	body := http.MaxBytesReader(w, r.Body, m.cm.Get().Server.MaxBodyBytes)
	if err := m.lib.Import(r.Context(), name, body); err != nil {
		m.respondWithLibraryError(w, r, "import model", name, err)
		return
	}

	info, err := m.lib.Info(r.Context(), name)
	if err != nil {
		m.respondWithLibraryError(w, r, "import model", name, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, info)
}

// allowMethod writes a 405 and returns false unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}
