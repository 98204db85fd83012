package controllers

import (
	"net/http"

	"github.com/fleetworks/allocd/internal/runtime"
	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
)

// Registry manages all HTTP controllers and registers their routes.
type Registry struct {
	general  *GeneralController
	requests *RequestsController
	alloc    *AllocController
	config   *ConfigController
	stats    *StatsController
}

// NewRegistry initializes every controller with the runtime and service.
func NewRegistry(rt *runtime.Runtime, svc *allocsvc.Service) *Registry {
	return &Registry{
		general:  NewGeneralController(rt, svc),
		requests: NewRequestsController(svc),
		alloc:    NewAllocController(svc),
		config:   NewConfigController(svc),
		stats:    NewStatsController(svc),
	}
}

// RegisterAllRoutes registers every controller route with the given mux.
func (r *Registry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.requests.RegisterRoutes(mux)
	r.alloc.RegisterRoutes(mux)
	r.config.RegisterRoutes(mux)
	r.stats.RegisterRoutes(mux)
}
