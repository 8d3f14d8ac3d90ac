package keeper

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// Router returns the dashboard API:
//
//	GET  /health
//	GET  /api/profiles?limit=N
//	GET  /api/profiles/{id}
//	GET  /api/runs?limit=N
//	POST /api/runs            manual run, Authorization: Bearer <token>
func (k *Keeper) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", k.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/profiles", k.handleProfiles)
		r.Get("/profiles/{id}", k.handleProfile)
		r.Get("/runs", k.handleRuns)
		r.With(k.requireToken).Post("/runs", k.handleTrigger)
	})
	return r
}

func (k *Keeper) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := k.lock.Held()
	body := map[string]any{
		"status":  "ok",
		"backend": k.config.Store.Backend,
		"running": running,
	}
	if running {
		if h, err := k.lock.Holder(); err == nil {
			body["holder"] = h
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (k *Keeper) handleProfiles(w http.ResponseWriter, r *http.Request) {
	recs, err := k.Profiles(r.Context(), limitParam(r, 100))
	if err != nil {
		k.logger.Error("keeper: list profiles", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (k *Keeper) handleProfile(w http.ResponseWriter, r *http.Request) {
	rec, err := k.Lookup(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	case err != nil:
		k.logger.Error("keeper: lookup profile", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (k *Keeper) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := k.Runs(r.Context(), limitParam(r, 20))
	if err != nil {
		k.logger.Error("keeper: list runs", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleTrigger runs synchronously; a run already in progress answers 409.
func (k *Keeper) handleTrigger(w http.ResponseWriter, r *http.Request) {
	sum, err := k.RunOnce(r.Context(), TriggerManual)
	switch {
	case err != nil:
		k.logger.Error("keeper: manual run", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case sum.Skipped:
		writeJSON(w, http.StatusConflict, sum)
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

// requireToken checks the bearer token against the configured bcrypt
// hash. Without a hash the endpoint is closed.
func (k *Keeper) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := k.config.Dashboard.TokenHash
		if hash == "" {
			writeError(w, http.StatusForbidden, "manual trigger disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
