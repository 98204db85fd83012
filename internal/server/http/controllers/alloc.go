package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetworks/allocd/internal/alloc"
	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
	"github.com/fleetworks/allocd/pkg/id"
)

// AllocController handles the claim-queue endpoints.
type AllocController struct {
	svc *allocsvc.Service
}

// NewAllocController creates a new alloc controller.
func NewAllocController(svc *allocsvc.Service) *AllocController {
	return &AllocController{svc: svc}
}

// RegisterRoutes registers queue routes with the given mux.
func (c *AllocController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/alloc/process", c.handleProcess)
	mux.HandleFunc("/v1/alloc/release-expired", c.handleReleaseExpired)
	mux.HandleFunc("/v1/alloc/claim", c.handleClaim)
	mux.HandleFunc("/v1/alloc/complete", c.handleComplete)
	mux.HandleFunc("/v1/alloc/pending", c.handlePending)
	mux.HandleFunc("/v1/alloc/stats", c.handleStats)
}

// handleProcess runs one allocation pass over NEW requests.
func (c *AllocController) handleProcess(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	res, err := c.svc.ProcessNewRequests(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

// handleReleaseExpired runs one lease-expiry sweep.
func (c *AllocController) handleReleaseExpired(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	res, err := c.svc.ReleaseExpired(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

type claimRequest struct {
	Worker   string `json:"worker"`
	MaxItems int    `json:"max_items"`
}

// handleClaim hands pending items to a worker.
func (c *AllocController) handleClaim(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Worker == "" {
		writeError(w, http.StatusBadRequest, "worker is required")
		return
	}
	items, err := c.svc.Claim(r.Context(), req.Worker, req.MaxItems)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

type completeRequest struct {
	ItemID  string          `json:"item_id"`
	Outcome string          `json:"outcome"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// handleComplete records a worker's outcome. A conflicting completion gets
// 409 with accepted=false rather than an opaque error.
func (c *AllocController) handleComplete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	itemID, err := id.Parse(req.ItemID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item_id")
		return
	}
	if req.Outcome != alloc.ItemDone && req.Outcome != alloc.ItemFailed {
		writeError(w, http.StatusBadRequest, "outcome must be DONE or FAILED")
		return
	}
	if err := c.svc.Complete(r.Context(), itemID, req.Outcome, req.Result); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"accepted": true})
}

// handlePending lists pending items in claim order.
//
// Query parameters: filter (CEL expression), limit.
func (c *AllocController) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := c.svc.Pending(r.Context(),
		r.URL.Query().Get("filter"),
		parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

// handleStats returns queue composition counts.
func (c *AllocController) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.svc.QueueStatistics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, stats)
}
