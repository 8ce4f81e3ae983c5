package swsi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/always-cache/swsi/pkg/preferences"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// ControlPrefix is the path prefix of the control API.
const ControlPrefix = "/__swsi"

const maxPreferenceSize = 1 << 10

// Handler returns the engine together with the control API used by page scripts:
// reading and setting preferences, and reinstalling the precache.
func (e *Engine) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route(ControlPrefix, func(r chi.Router) {
		r.Use(hlog.NewHandler(e.log))
		r.Use(hlog.RequestIDHandler("reqId", "Request-Id"))
		r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("code", status).
				Dur("duration", duration).
				Msg("Control request")
		}))
		r.Use(middleware.Recoverer)

		r.Get("/preferences/{key}", e.getPreference)
		r.Put("/preferences/{key}", e.putPreference)
		r.Post("/precache", e.reinstall)
	})
	r.Handle("/*", e)
	return r
}

func (e *Engine) clientPrefs(w http.ResponseWriter, r *http.Request) preferences.Prefs {
	return preferences.Scoped(e.prefs, e.clients.Identify(w, r))
}

func (e *Engine) getPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := e.clientPrefs(w, r).Get(r.Context(), key)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("Could not read preference")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, value)
}

// putPreference sets the preference to the request body.
// With default=true, the value is only set if the preference is unset.
func (e *Engine) putPreference(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPreferenceSize))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "preference value too large", http.StatusRequestEntityTooLarge)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value := strings.TrimSpace(string(body))
	if key == preferences.KeyLang && len(e.locales.Codes()) > 0 && !e.locales.Has(value) {
		http.Error(w, "unknown locale", http.StatusBadRequest)
		return
	}

	prefs := e.clientPrefs(w, r)
	if r.URL.Query().Get("default") == "true" {
		if _, ok, err := prefs.Get(r.Context(), key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Could not read preference")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	if err := prefs.Set(r.Context(), key, value); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Could not write preference")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Trace().Str("key", key).Str("value", value).Msg("Preference set")
	w.WriteHeader(http.StatusNoContent)
}

type installResult struct {
	Installed int    `json:"installed"`
	Removed   int    `json:"removed"`
	Error     string `json:"error,omitempty"`
}

func (e *Engine) reinstall(w http.ResponseWriter, r *http.Request) {
	installed, removed, err := e.Install(r.Context())
	result := installResult{Installed: installed, Removed: removed}
	status := http.StatusOK
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not install precache")
		result.Error = err.Error()
		status = http.StatusBadGateway
	} else {
		hlog.FromRequest(r).Info().Object("precache", result).Msg("Precache reinstalled")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not write response")
	}
}

func (i installResult) MarshalZerologObject(ev *zerolog.Event) {
	ev.Int("installed", i.Installed).Int("removed", i.Removed)
}
