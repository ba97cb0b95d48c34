// Package api serves the webhook and the read-only status surface.
//
//	POST /webhook   signal payload {signal, approval?, signalId?}
//	GET  /_health   liveness, plain "OK"
//	GET  /status    engine snapshot
//	GET  /metrics   Prometheus exposition, when a handler is supplied
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/goldpair/admission"
	"github.com/rustyeddy/goldpair/engine"
	"github.com/rustyeddy/goldpair/signal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxBodyBytes caps a webhook body.
const MaxBodyBytes = 64 << 10

type Engine interface {
	HandleSignal(ctx context.Context, p signal.Payload) engine.Response
	Status() engine.Status
}

// NewRouter wires the routes. metrics may be nil.
func NewRouter(eng Engine, log zerolog.Logger, metrics http.Handler) *mux.Router {
	log = log.With().Str("component", "api").Logger()
	h := &handler{eng: eng, log: log}

	router := mux.NewRouter()
	router.Use(Recovery(log))
	router.Use(RequestID)
	router.Use(Logging(log))

	router.HandleFunc("/webhook", h.webhook).Methods(http.MethodPost)
	router.HandleFunc("/_health", health).Methods(http.MethodGet)
	router.HandleFunc("/status", h.status).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return router
}

// NewServer returns an http.Server for router with conservative timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type handler struct {
	eng Engine
	log zerolog.Logger
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, engine.Body{Reason: admission.Invalid, Error: "body too large"})
			return
		}
		h.log.Warn().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("webhook body read failed")
		writeJSON(w, http.StatusBadRequest, engine.Body{Reason: admission.Invalid, Error: "unreadable body"})
		return
	}

	var p signal.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, engine.Body{Reason: admission.Invalid, Error: "malformed JSON body"})
		return
	}

	res := h.eng.HandleSignal(r.Context(), p)
	writeJSON(w, res.Status, res.Body)
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
