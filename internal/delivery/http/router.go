package http

import (
	"github.com/fasthttp/router"
)

// Router registers the service's HTTP routes
type Router struct {
	jobs   *JobHandler
	pool   *PoolHandler
	health *HealthHandler
}

// NewRouter creates a new router
func NewRouter(jobs *JobHandler, pool *PoolHandler, health *HealthHandler) *Router {
	return &Router{
		jobs:   jobs,
		pool:   pool,
		health: health,
	}
}

// RegisterRoutes registers all routes on the fasthttp router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.POST("/jobs/dispatch", r.jobs.StartDispatch)
	rt.POST("/jobs/extraction", r.jobs.StartExtraction)
	rt.POST("/jobs/{id}/cancel", r.jobs.Cancel)
	rt.GET("/jobs/{id}", r.jobs.Status)
	rt.GET("/jobs", r.jobs.List)

	rt.GET("/accounts", r.pool.ListAccounts)
	rt.POST("/accounts", r.pool.AddAccount)
	rt.POST("/accounts/{id}/category", r.pool.AssignCategory)

	rt.GET("/categories", r.pool.ListCategories)
	rt.POST("/categories", r.pool.CreateCategory)

	rt.GET("/proxies", r.pool.ListProxies)
	rt.POST("/proxies", r.pool.CreateProxy)
	rt.POST("/proxies/auto-assign", r.pool.AutoAssignProxies)

	rt.GET("/settings", r.pool.GetSettings)
	rt.PUT("/settings", r.pool.PutSettings)

	rt.GET("/health", r.health.Handle)
}
