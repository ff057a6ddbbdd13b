// Package admin exposes the operator HTTP API: cluster status, recent
// audit events, manual failover and circuit breaker control.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Shavakan/db-failover/pkg/audit"
	"github.com/Shavakan/db-failover/pkg/circuit"
	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/controller"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var adminLog = logging.WithComponent(logging.LogTypeAdmin, "handler")
var actionLog = logging.WithComponent(logging.LogTypeAdmin, "action")

// FailoverController is the controller surface the admin API drives.
type FailoverController interface {
	Status() controller.Status
	TriggerFailover(ctx context.Context) (*cluster.FailoverEvent, error)
}

// AuditReader lists recent failover events. *audit.Store satisfies it.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// CircuitAdmin inspects and resets the failover circuit breaker.
// *circuit.Breaker satisfies it.
type CircuitAdmin interface {
	Check(ctx context.Context) (circuit.State, error)
	Reset(ctx context.Context) error
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// FailoverResponse summarizes a finished manual failover attempt.
type FailoverResponse struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome"`
	Target  string `json:"target,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Handler provides the admin HTTP endpoints.
type Handler struct {
	ctrl    FailoverController
	audit   AuditReader
	circuit CircuitAdmin
	auth    *AuthMiddleware
}

// NewHandler creates an admin handler. If adminSecret is empty,
// authentication is disabled.
func NewHandler(ctrl FailoverController, auditReader AuditReader, circuitAdmin CircuitAdmin, adminSecret string) *Handler {
	return &Handler{
		ctrl:    ctrl,
		audit:   auditReader,
		circuit: circuitAdmin,
		auth:    NewAuthMiddleware(adminSecret),
	}
}

// RegisterRoutes registers admin API routes on the given mux. Everything
// except the liveness endpoint requires the admin token when configured.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /status", h.auth.WrapFunc(h.GetStatus))
	mux.Handle("GET /audit/recent", h.auth.WrapFunc(h.RecentEvents))
	mux.Handle("POST /failover", h.auth.WrapFunc(h.TriggerFailover))
	mux.Handle("GET /circuit", h.auth.WrapFunc(h.GetCircuit))
	mux.Handle("POST /circuit/reset", h.auth.WrapFunc(h.ResetCircuit))
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// RecentEvents handles GET /audit/recent.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Audit trail not configured", "")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = parsed
	}

	events, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list audit events", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// TriggerFailover handles POST /failover. The attempt runs synchronously;
// the response carries its terminal outcome.
func (h *Handler) TriggerFailover(w http.ResponseWriter, r *http.Request) {
	event, err := h.ctrl.TriggerFailover(r.Context())
	if err != nil {
		h.logAction(r, "failover", "denied", slog.String(logging.KeyError, err.Error()))
		switch {
		case errors.Is(err, controller.ErrNotLeader):
			h.writeError(w, http.StatusConflict, "This instance is not the controller leader", "")
		case errors.Is(err, controller.ErrAttemptInFlight):
			h.writeError(w, http.StatusConflict, "A failover attempt is already in flight", "")
		default:
			h.writeError(w, http.StatusInternalServerError, "Failover failed to start", err.Error())
		}
		return
	}

	result := "ok"
	status := http.StatusOK
	if event.Outcome != cluster.OutcomeSucceeded {
		result = "error"
	}
	h.logAction(r, "failover", result,
		slog.String(logging.KeyEventID, event.ID),
		slog.String(logging.KeyOutcome, string(event.Outcome)))

	h.writeJSON(w, status, FailoverResponse{
		EventID: event.ID,
		Outcome: string(event.Outcome),
		Target:  event.Target,
		Detail:  event.Detail,
	})
}

// GetCircuit handles GET /circuit.
func (h *Handler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	if h.circuit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Circuit breaker not configured", "")
		return
	}

	state, err := h.circuit.Check(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to check circuit state", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

// ResetCircuit handles POST /circuit/reset.
func (h *Handler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	if h.circuit == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Circuit breaker not configured", "")
		return
	}

	if err := h.circuit.Reset(r.Context()); err != nil {
		h.logAction(r, "circuit_reset", "error", slog.String(logging.KeyError, err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to reset circuit", err.Error())
		return
	}
	h.logAction(r, "circuit_reset", "ok")
	h.writeJSON(w, http.StatusOK, map[string]string{"state": string(circuit.StateClosed)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		adminLog.Error("json encode failed", slog.String(logging.KeyError, err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, details string) {
	resp := ErrorResponse{Error: message}
	if details != "" {
		resp.Details = details
	}
	h.writeJSON(w, status, resp)
}

// logAction records an operator-initiated action with its source address.
func (h *Handler) logAction(r *http.Request, action, result string, extra ...any) {
	remoteAddr := r.Header.Get("X-Forwarded-For")
	if remoteAddr == "" {
		remoteAddr = r.RemoteAddr
	}
	attrs := []any{
		slog.String("action", action),
		slog.String("result", result),
		slog.String(logging.KeyRemoteAddr, remoteAddr),
	}
	attrs = append(attrs, extra...)

	switch result {
	case "denied", "error":
		actionLog.Warn("admin action", attrs...)
	default:
		actionLog.Info("admin action", attrs...)
	}
}
