package controllers

import (
	"encoding/json"
	"net/http"

	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
)

// ConfigController handles the live-settings endpoints.
type ConfigController struct {
	svc *allocsvc.Service
}

// NewConfigController creates a new config controller.
func NewConfigController(svc *allocsvc.Service) *ConfigController {
	return &ConfigController{svc: svc}
}

// RegisterRoutes registers settings routes with the given mux.
func (c *ConfigController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/config", c.handleList)
	mux.HandleFunc("/v1/config/update", c.handleUpdate)
	mux.HandleFunc("/v1/config/reset", c.handleReset)
	mux.HandleFunc("/v1/config/init", c.handleInit)
}

// handleList returns every setting with its current and default value.
func (c *ConfigController) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := c.svc.ListSettings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settings": entries})
}

type updateSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// handleUpdate changes one setting. Unknown keys and bad values get 400.
func (c *ConfigController) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := c.svc.UpdateSetting(r.Context(), req.Key, req.Value); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"updated": true})
}

// handleReset restores every setting to its default.
func (c *ConfigController) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := c.svc.ResetSettings(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"reset": true})
}

// handleInit inserts defaults for missing settings.
func (c *ConfigController) handleInit(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := c.svc.InitSettings(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"initialized": true})
}
