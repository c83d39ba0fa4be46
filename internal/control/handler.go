package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/SentinalMax/MineScan/internal/engine"
	"github.com/SentinalMax/MineScan/internal/registry"
)

// ErrorResponse is the JSON shape of every non-2xx response.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Details        string   `json:"details,omitempty"`
	InvalidSubnets []string `json:"invalidSubnets,omitempty"`
}

// startScanBody is the POST /control/scans request body.
type startScanBody struct {
	Subnets    []string `json:"subnets"`
	Subnet     string   `json:"subnet"`
	SubnetCidr string   `json:"subnetCidr"`
	ScanID     string   `json:"scanId"`
	MaxActive  *int     `json:"maxActive"`
}

// Handler exposes the scan control plane over HTTP.
type Handler struct {
	Engine *engine.Engine
}

// Mux builds the routed, middleware-wrapped http.Handler for this
// control plane.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /control/scans", h.startScan)
	mux.HandleFunc("GET /control/scans", h.listScans)
	mux.HandleFunc("POST /control/scans/{scanId}/stop", h.stopScan)
	return Chain(mux, Recover, CORS, Logger)
}

func (h *Handler) startScan(w http.ResponseWriter, r *http.Request) {
	var body startScanBody
	if r.Body != nil {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	subnets := body.Subnets
	if len(subnets) == 0 {
		if body.SubnetCidr != "" {
			subnets = []string{body.SubnetCidr}
		} else if body.Subnet != "" {
			subnets = []string{body.Subnet}
		}
	}

	now := float64(time.Now().Unix())
	result, err := h.Engine.StartScan(now, engine.StartScanRequest{
		Subnets:   subnets,
		ScanID:    body.ScanID,
		MaxActive: body.MaxActive,
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, result.Record)
	case errors.Is(err, engine.ErrInvalidSubnets):
		writeErrorWithInvalid(w, http.StatusBadRequest, "invalid subnets", result.InvalidSubnets)
	case errors.Is(err, engine.ErrNoSubnets):
		writeError(w, http.StatusBadRequest, "no valid subnets", "")
	case errors.Is(err, registry.ErrConflict):
		writeError(w, http.StatusConflict, "scan already running", "")
	default:
		writeError(w, http.StatusInternalServerError, "failed to start scan", err.Error())
	}
}

func (h *Handler) listScans(w http.ResponseWriter, r *http.Request) {
	items := h.Engine.Registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) stopScan(w http.ResponseWriter, r *http.Request) {
	scanID := r.PathValue("scanId")
	err := h.Engine.StopScan(scanID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(registry.StatusStopping)})
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found", "")
	case errors.Is(err, registry.ErrConflict):
		writeError(w, http.StatusConflict, "scan not stoppable", "")
	default:
		writeError(w, http.StatusInternalServerError, "failed to stop scan", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

func writeErrorWithInvalid(w http.ResponseWriter, status int, message string, invalid []string) {
	writeJSON(w, status, ErrorResponse{Error: message, InvalidSubnets: invalid})
}
