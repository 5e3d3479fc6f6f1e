package http

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/pkg/httputil"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler reports database and event producer liveness
type HealthHandler struct {
	db       *gorm.DB
	producer domain.EventProducer
	logger   zerolog.Logger
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(db *gorm.DB, producer domain.EventProducer, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		producer: producer,
		logger:   logger,
	}
}

// Handle handles the health check request
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	components := h.checkComponents()
	status := overallStatus(components)

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}

	statusCode := fasthttp.StatusOK
	if status == HealthStatusUnhealthy {
		statusCode = fasthttp.StatusServiceUnavailable
		h.logger.Warn().Interface("components", components).Msg("Health check failed")
	}

	httputil.WriteResponseWithStatus(ctx, response, statusCode)
}

func (h *HealthHandler) checkComponents() []ComponentHealth {
	components := make([]ComponentHealth, 0, 2)

	dbHealthy := false
	dbMsg := ""
	if sqlDB, err := h.db.DB(); err != nil {
		dbMsg = err.Error()
	} else if err := sqlDB.Ping(); err != nil {
		dbMsg = err.Error()
	} else {
		dbHealthy = true
	}
	components = append(components, ComponentHealth{
		Name:    "database",
		Healthy: dbHealthy,
		Message: dbMsg,
	})

	producerHealthy := h.producer != nil && h.producer.IsHealthy()
	producerMsg := ""
	if !producerHealthy {
		producerMsg = "Kafka producer is not healthy"
	}
	components = append(components, ComponentHealth{
		Name:    "kafka_producer",
		Healthy: producerHealthy,
		Message: producerMsg,
	})

	return components
}

// overallStatus derives the service status: the database is load-bearing,
// the event producer only degrades reporting.
func overallStatus(components []ComponentHealth) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range components {
		if c.Healthy {
			continue
		}
		if c.Name == "database" {
			return HealthStatusUnhealthy
		}
		status = HealthStatusDegraded
	}
	return status
}
