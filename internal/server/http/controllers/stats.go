package controllers

import (
	"net/http"

	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
)

// StatsController handles the rollup endpoints.
type StatsController struct {
	svc *allocsvc.Service
}

// NewStatsController creates a new stats controller.
func NewStatsController(svc *allocsvc.Service) *StatsController {
	return &StatsController{svc: svc}
}

// RegisterRoutes registers stats routes with the given mux.
func (c *StatsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/stats/daily", c.handleDaily)
	mux.HandleFunc("/v1/stats/websites", c.handleWebsites)
	mux.HandleFunc("/v1/stats/rebuild", c.handleRebuild)
}

// handleDaily lists daily rollups.
//
// Query parameters: from, to (inclusive yyyy-mm-dd bounds).
func (c *StatsController) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, err := c.svc.DailyStats(r.Context(),
		r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"daily": days})
}

// handleWebsites lists per-site rollups, optionally for one website.
func (c *StatsController) handleWebsites(w http.ResponseWriter, r *http.Request) {
	sites, err := c.svc.WebsiteStats(r.Context(), r.URL.Query().Get("website"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"websites": sites})
}

// handleRebuild drops the rollups and re-folds the whole outcome log.
func (c *StatsController) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	res, err := c.svc.RebuildStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}
