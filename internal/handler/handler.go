package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"labrelay/internal/agent"
	"labrelay/internal/domain"
	"labrelay/internal/transport"
)

const maxBodyBytes = 1 << 20

// Controller is the agent surface the handlers drive
type Controller interface {
	Discover(ctx context.Context) (agent.DiscoverResult, error)
	Execute(ctx context.Context, req domain.CommandRequest) domain.CommandResult
	Liveness(ctx context.Context) agent.Status
	Resources(ctx context.Context) ([]string, error)
}

// AgentHandler serves the agent API
type AgentHandler struct {
	ctl     Controller
	version string
	log     zerolog.Logger
}

func NewAgentHandler(ctl Controller, version string, log zerolog.Logger) *AgentHandler {
	return &AgentHandler{ctl: ctl, version: version, log: log}
}

// ErrorResponse is the body of every 4xx/5xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Routes registers the API on mux
func (h *AgentHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /detect", h.Detect)
	mux.HandleFunc("POST /control", h.Control)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /debug/resources", h.DebugResources)
	mux.HandleFunc("GET /{$}", h.Index)
}

// Detect scans and identifies every instrument
func (h *AgentHandler) Detect(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctl.Discover(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, transport.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.writeJSON(w, struct {
			agent.DiscoverResult
			Message string `json:"message"`
		}{res, "discover failed: " + err.Error()}, status)
		return
	}

	h.writeJSON(w, res, http.StatusOK)
}

// Control runs one action
func (h *AgentHandler) Control(w http.ResponseWriter, r *http.Request) {
	var req domain.CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address == "" || req.Action == "" || req.Category == "" {
		h.writeError(w, "Missing required fields", "address, action and instrument_type are required", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, h.ctl.Execute(r.Context(), req), http.StatusOK)
}

// Status reports liveness
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.ctl.Liveness(r.Context()), http.StatusOK)
}

// DebugResources lists raw bus addresses
func (h *AgentHandler) DebugResources(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.ctl.Resources(r.Context())
	if err != nil {
		h.writeError(w, "Enumeration failed", err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, map[string]any{
		"resources":      addrs,
		"resource_count": len(addrs),
	}, http.StatusOK)
}

// Index describes the agent
func (h *AgentHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"message": "labrelay instrument agent",
		"version": h.version,
		"status":  "running",
		"endpoints": map[string]string{
			"/detect":          "detect instruments",
			"/control":         "control an instrument",
			"/status":          "agent status",
			"/debug/resources": "raw resource list",
		},
	}, http.StatusOK)
}

func (h *AgentHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON")
	}
}

func (h *AgentHandler) writeError(w http.ResponseWriter, msg, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: msg, Details: strings.TrimSpace(details)}, statusCode)
}
