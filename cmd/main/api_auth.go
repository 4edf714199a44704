package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    key_prefix    TEXT      NOT NULL,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL,
    created_at    INTEGER   NOT NULL
);
`

// keyPrefixLength is how much of a raw key is kept for display.
const keyPrefixLength = 12

// authHeader carries the raw API key on every authenticated request.
const authHeader = "cadence-auth"

const (
	scopeMaster        = "*"
	scopeMarkovRead    = "markov:read"
	scopeMarkovWrite   = "markov:write"
	scopeStatsRead     = "stats:read"
	scopeServerConfig  = "server:config"
	scopeServerControl = "server:control"
	scopeAuthManage    = "auth:manage"
)

var knownScopes = map[string]struct{}{
	scopeMaster:        {},
	scopeMarkovRead:    {},
	scopeMarkovWrite:   {},
	scopeStatsRead:     {},
	scopeServerConfig:  {},
	scopeServerControl: {},
	scopeAuthManage:    {},
}

type contextKey string

const (
	contextKeyPermissions = contextKey("permissions")
	contextKeyRequestID   = contextKey("request_id")
)

// Permissions holds the authentication info for a request.
type Permissions struct {
	ScopeSet map[string]struct{} // A set for O(1) lookups
}

// AuthAPI holds the dependencies for the authentication API handlers.
type AuthAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupAuthSchema(db *sql.DB) error {
	if _, err := db.Exec(authSchema); err != nil {
		return err
	}
	return nil
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{
		db:     db,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints on a standard http.ServeMux.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// APIKeyInfo is the structure returned when listing keys. The raw key is
// never stored; Prefix is enough to tell keys apart.
type APIKeyInfo struct {
	ID          int       `json:"id"`
	Prefix      string    `json:"prefix"`
	Scopes      []string  `json:"scopes"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate checks for a valid key in the "cadence-auth" header and
// stores the key's scopes in the request context. While no keys exist the
// API is open and every request gets the master scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		var keyCount int
		err := a.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM api_keys").Scan(&keyCount)
		if err != nil {
			a.logger.ErrorContext(r.Context(), "Authenticate failed to count keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if keyCount == 0 {
			ctx := context.WithValue(r.Context(), contextKeyPermissions, newPermissions([]string{scopeMaster}))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		perms, err := a.lookupKey(r.Context(), r.Header.Get(authHeader))
		switch {
		case errors.Is(err, errUnknownKey):
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		case err != nil:
			a.logger.ErrorContext(r.Context(), "Authenticate failed to query API key", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errUnknownKey = errors.New("unknown api key")

// lookupKey resolves a raw key into its permissions. Empty and unknown keys
// return errUnknownKey.
func (a *AuthAPI) lookupKey(ctx context.Context, rawKey string) (*Permissions, error) {
	if rawKey == "" {
		return nil, errUnknownKey
	}
	var scopesStr string
	err := a.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&scopesStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUnknownKey
	}
	if err != nil {
		return nil, err
	}
	return newPermissions(strings.Fields(scopesStr)), nil
}

func newPermissions(scopes []string) *Permissions {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	return &Permissions{ScopeSet: scopeSet}
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listKeys(w, r)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	trimmedPath := strings.TrimPrefix(r.URL.Path, "/api/auth/keys/")
	idStr := strings.TrimSuffix(trimmedPath, "/") // Handle optional trailing slash

	id, err := strconv.Atoi(idStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}

	if r.Method == http.MethodDelete {
		a.deleteKey(w, r, id)
	} else {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed for this key resource")
	}
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	authCtx, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"scopes": slices.Sorted(maps.Keys(authCtx.ScopeSet)),
	})
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	rows, err := a.db.QueryContext(r.Context(), `SELECT id, key_prefix, description, scopes, created_at FROM api_keys ORDER BY id`)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Failed to query API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var key APIKeyInfo
		var scopesStr string
		var createdAt int64
		if err = rows.Scan(&key.ID, &key.Prefix, &key.Description, &scopesStr, &createdAt); err != nil {
			a.logger.ErrorContext(r.Context(), "Failed to scan API key row", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process database results")
			return
		}
		key.Scopes = strings.Fields(scopesStr)
		key.CreatedAt = time.Unix(createdAt, 0).UTC()
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		a.logger.ErrorContext(r.Context(), "Failed to iterate API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to process database results")
		return
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	for _, scope := range req.Scopes {
		if _, ok := knownScopes[scope]; !ok {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scope %q", scope))
			return
		}
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Failed to generate new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}

	var keyCount int
	_ = a.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM api_keys").Scan(&keyCount)
	scopesStr := strings.Join(req.Scopes, " ")
	// The first key created is always given a master scope, no matter what.
	// This ensures that the user cannot softlock themselves out of permissions.
	if keyCount == 0 {
		scopesStr = scopeMaster
	}

	var newID int
	err = a.db.QueryRowContext(r.Context(),
		`INSERT INTO api_keys (key_hash, key_prefix, description, scopes, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		hashAPIKey(rawKey), rawKey[:keyPrefixLength], req.Description, scopesStr, time.Now().Unix()).Scan(&newID)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Failed to insert new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	a.logger.InfoContext(r.Context(), "API key created", slog.Int("key_id", newID), slog.String("scopes", scopesStr))
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:     newID,
		RawKey: rawKey,
		Scopes: strings.Fields(scopesStr),
	})
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request, id int) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	if id == 1 {
		respondWithError(w, http.StatusBadRequest, "Cannot delete the primary master key (ID 1)")
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	if rowsAffected, _ := res.RowsAffected(); rowsAffected == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hasScope checks if the permission set in the request context includes a required scope.
func hasScope(r *http.Request, requiredScope string) bool {
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		return false
	}

	if _, isMaster := perms.ScopeSet[scopeMaster]; isMaster {
		return true
	}

	_, has := perms.ScopeSet[requiredScope]
	return has
}

// requireScope writes a 403 and returns false if the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "cad_" + hex.EncodeToString(bytes), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
