package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetworks/allocd/internal/intake"
	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
	"github.com/fleetworks/allocd/pkg/id"
)

// RequestsController handles service-request intake endpoints.
type RequestsController struct {
	svc *allocsvc.Service
}

// NewRequestsController creates a new requests controller.
func NewRequestsController(svc *allocsvc.Service) *RequestsController {
	return &RequestsController{svc: svc}
}

// RegisterRoutes registers request routes with the given mux.
func (c *RequestsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/requests", c.handleRequests)
	mux.HandleFunc("/v1/requests/delete", c.handleDelete)
}

type submitRequest struct {
	Website  string          `json:"website"`
	Priority int64           `json:"priority"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// handleRequests submits on POST, lists on GET.
func (c *RequestsController) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := c.svc.SubmitRequest(r.Context(), intake.SubmitInput{
			Website:  req.Website,
			Priority: req.Priority,
			Config:   req.Config,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, created)
	case http.MethodGet:
		list, err := c.svc.ListRequests(r.Context(),
			r.URL.Query().Get("status"),
			parseLimit(r.URL.Query().Get("limit")))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"requests": list})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type deleteRequest struct {
	RequestID string `json:"request_id"`
}

// handleDelete soft-deletes a request.
func (c *RequestsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rid, err := id.Parse(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request_id")
		return
	}
	if err := c.svc.DeleteRequest(r.Context(), rid); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"deleted": true})
}
