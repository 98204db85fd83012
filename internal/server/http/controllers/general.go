package controllers

import (
	"net/http"

	"github.com/fleetworks/allocd/internal/runtime"
	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
)

// GeneralController handles health and audit endpoints.
type GeneralController struct {
	rt  *runtime.Runtime
	svc *allocsvc.Service
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime, svc *allocsvc.Service) *GeneralController {
	return &GeneralController{rt: rt, svc: svc}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/audit", c.handleAudit)
}

// handleHealth returns 200 with {"status":"ok"} when serving, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleAudit lists recent audit events, oldest first.
//
// Query parameters: limit, since_ms.
func (c *GeneralController) handleAudit(w http.ResponseWriter, r *http.Request) {
	events, err := c.svc.AuditTrail(r.Context(),
		parseLimit(r.URL.Query().Get("limit")),
		parseMs(r.URL.Query().Get("since_ms")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}
