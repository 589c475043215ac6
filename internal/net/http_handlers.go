package net

import (
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/relay"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

// SnapshotSource publishes the relay diagnostics.
type SnapshotSource interface {
	Snapshot() relay.Snapshot
}

// CommandQueue hands requests to the goroutine that owns the session.
type CommandQueue interface {
	Enqueue(cmd sim.Command) bool
}

type HTTPHandlerConfig struct {
	Session  SnapshotSource
	Commands CommandQueue
	Metrics  *logging.Metrics
	// Transport serves /ws. It is nil on clients.
	Transport nethttp.Handler
	TickRate  int
	Logger    telemetry.Logger
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	r.Get("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var telemetrySnapshot map[string]uint64
		if cfg.Metrics != nil {
			telemetrySnapshot = cfg.Metrics.Snapshot()
		}
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			TickRate   int               `json:"tickRate"`
			Session    any               `json:"session,omitempty"`
			Telemetry  map[string]uint64 `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   cfg.TickRate,
			Telemetry:  telemetrySnapshot,
		}
		if cfg.Session != nil {
			payload.Session = cfg.Session.Snapshot()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	// enqueueHostCommand queues cmd for the session when this node is the host
	// and reports whether it did. Failures are written to w.
	enqueueHostCommand := func(w nethttp.ResponseWriter, cmd sim.Command) bool {
		if cfg.Commands == nil || cfg.Session == nil {
			httpError(w, "no session", nethttp.StatusServiceUnavailable)
			return false
		}
		if cfg.Session.Snapshot().Role != relay.RoleHost {
			httpError(w, "only the host accepts session commands", nethttp.StatusConflict)
			return false
		}
		if !cfg.Commands.Enqueue(cmd) {
			logger.Printf("[http] %s rejected, command queue full", cmd.Type)
			httpError(w, "command queue full", nethttp.StatusServiceUnavailable)
			return false
		}
		return true
	}

	r.Post("/world/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cmd := sim.Command{Type: sim.CommandResetWorld, Origin: middleware.GetReqID(r.Context())}
		if !enqueueHostCommand(w, cmd) {
			return
		}
		writeAccepted(w, struct {
			Status  string          `json:"status"`
			Command sim.CommandType `json:"command"`
			Epoch   uint16          `json:"epoch"`
		}{
			Status:  "queued",
			Command: cmd.Type,
			Epoch:   cfg.Session.Snapshot().Epoch,
		})
	})

	r.Post("/anchor", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var request struct {
			Anchor string `json:"anchor"`
		}
		if err := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, 1024)).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, "invalid request body", nethttp.StatusBadRequest)
			return
		}
		// An empty request asks the host to mint a new anchor.
		anchor := uuid.New()
		if request.Anchor != "" {
			parsed, err := uuid.Parse(request.Anchor)
			if err != nil || parsed == uuid.Nil {
				httpError(w, "anchor must be a non-nil uuid", nethttp.StatusBadRequest)
				return
			}
			anchor = parsed
		}

		cmd := sim.Command{Type: sim.CommandShareAnchor, Origin: middleware.GetReqID(r.Context()), Anchor: anchor}
		if !enqueueHostCommand(w, cmd) {
			return
		}
		writeAccepted(w, struct {
			Status  string          `json:"status"`
			Command sim.CommandType `json:"command"`
			Anchor  string          `json:"anchor"`
		}{
			Status:  "queued",
			Command: cmd.Type,
			Anchor:  anchor.String(),
		})
	})

	if cfg.Transport != nil {
		r.Handle("/ws", cfg.Transport)
	}

	return r
}

func writeAccepted(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(nethttp.StatusAccepted)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
