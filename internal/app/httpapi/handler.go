// Package httpapi exposes the boot engine to the UI shell over REST.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	app "github.com/R3E-Network/session_gateway/internal/app"
	"github.com/R3E-Network/session_gateway/internal/app/metrics"
	apperrors "github.com/R3E-Network/session_gateway/internal/errors"
	"github.com/R3E-Network/session_gateway/internal/middleware"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// handler bundles HTTP endpoints for the boot engine.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// Options tunes the HTTP surface.
type Options struct {
	// RateLimitPerSecond and RateLimitBurst guard the boot endpoints per
	// client. Zero disables limiting.
	RateLimitPerSecond int
	RateLimitBurst     int
}

// NewHandler returns a router exposing the boot REST API.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	clients := router.PathPrefix("/clients/{client}").Subrouter()
	clients.HandleFunc("/boot/run", h.bootRun).Methods(http.MethodPost)
	clients.HandleFunc("/boot/reset", h.bootReset).Methods(http.MethodPost)
	clients.HandleFunc("/boot/decision", h.bootDecision).Methods(http.MethodGet)
	clients.HandleFunc("/credential", h.setCredential).Methods(http.MethodPut)
	clients.HandleFunc("/credential", h.clearCredential).Methods(http.MethodDelete)

	if opts.RateLimitPerSecond > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = opts.RateLimitPerSecond
		}
		limiter := middleware.NewRateLimiter(opts.RateLimitPerSecond, burst, log)
		clients.Use(limiter.Handler)
	}

	return metrics.InstrumentHandler(router)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "session-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func clientID(r *http.Request) (string, *apperrors.ServiceError) {
	id := strings.TrimSpace(mux.Vars(r)["client"])
	if id == "" {
		return "", apperrors.BadRequest("client id is required")
	}
	return id, nil
}

func (h *handler) bootRun(w http.ResponseWriter, r *http.Request) {
	client, serviceErr := clientID(r)
	if serviceErr != nil {
		writeServiceError(w, serviceErr)
		return
	}

	requestID := uuid.NewString()
	decision, err := h.app.Boot.ForClient(client).Run(r.Context())
	if err != nil {
		h.log.WithError(err).WithFields(map[string]interface{}{
			"client_id":  client,
			"request_id": requestID,
		}).Warn("boot run abandoned")
		writeServiceError(w, apperrors.Internal(err))
		return
	}

	h.log.WithFields(map[string]interface{}{
		"client_id":  client,
		"request_id": requestID,
		"decision":   string(decision.Step),
	}).Info("boot run completed")
	writeJSON(w, http.StatusOK, decision)
}

func (h *handler) bootReset(w http.ResponseWriter, r *http.Request) {
	client, serviceErr := clientID(r)
	if serviceErr != nil {
		writeServiceError(w, serviceErr)
		return
	}

	h.app.Boot.ForClient(client).Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) bootDecision(w http.ResponseWriter, r *http.Request) {
	client, serviceErr := clientID(r)
	if serviceErr != nil {
		writeServiceError(w, serviceErr)
		return
	}

	decision, ok := h.app.Boot.ForClient(client).Decision()
	if !ok {
		writeServiceError(w, apperrors.NotFound("no cached decision"))
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *handler) setCredential(w http.ResponseWriter, r *http.Request) {
	client, serviceErr := clientID(r)
	if serviceErr != nil {
		writeServiceError(w, serviceErr)
		return
	}

	var payload struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(payload.Credential) == "" {
		writeServiceError(w, apperrors.BadRequest("credential is required"))
		return
	}

	if err := h.app.Credentials.SetCredential(r.Context(), client, payload.Credential); err != nil {
		writeServiceError(w, apperrors.Internal(err))
		return
	}

	// A new credential invalidates any cached decision for the client.
	h.app.Boot.ForClient(client).Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) clearCredential(w http.ResponseWriter, r *http.Request) {
	client, serviceErr := clientID(r)
	if serviceErr != nil {
		writeServiceError(w, serviceErr)
		return
	}

	if err := h.app.Credentials.ClearCredential(r.Context(), client); err != nil {
		writeServiceError(w, apperrors.Internal(err))
		return
	}

	h.app.Boot.ForClient(client).Reset()
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeServiceError(w http.ResponseWriter, serviceErr *apperrors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   serviceErr.Code,
		"message": serviceErr.Message,
	})
}
