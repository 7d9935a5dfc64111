package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kinship"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests
type HealthHandler struct {
	kinship kinship.Kinship
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(k kinship.Kinship) *HealthHandler {
	return &HealthHandler{
		kinship: k,
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "kinship",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := gin.H{
		"status":    "ready",
		"service":   "kinship",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    gin.H{},
	}

	allHealthy := true
	checks := response["checks"].(gin.H)

	if h.kinship != nil {
		// Stats touches every table without side effects, which makes it a
		// cheap end-to-end connectivity probe.
		dbStartTime := time.Now()
		_, err := h.kinship.Stats(ctx)
		dbDuration := time.Since(dbStartTime)

		if err != nil {
			checks["database"] = gin.H{
				"status":   "unhealthy",
				"error":    err.Error(),
				"duration": dbDuration.String(),
			}
			allHealthy = false
		} else {
			checks["database"] = gin.H{
				"status":   "healthy",
				"duration": dbDuration.String(),
			}
		}
	} else {
		checks["database"] = gin.H{
			"status": "unhealthy",
			"error":  "kinship client not initialized",
		}
		allHealthy = false
	}

	if !allHealthy {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	// Simple liveness check - just confirm the service is running
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "kinship",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHealthCheck handles GET /health/detailed - comprehensive health information
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	startTime := time.Now()
	response := gin.H{
		"status":  "healthy",
		"service": "kinship",
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"environment": gin.H{
			"go_version": GoVersion,
		},
		"checks": gin.H{},
		"metrics": gin.H{
			"response_time_ms": 0, // Will be set at the end
		},
	}

	allHealthy := true
	checks := response["checks"].(gin.H)

	if h.kinship != nil {
		// Database connectivity check
		dbStartTime := time.Now()
		stats, err := h.kinship.Stats(ctx)
		dbDuration := time.Since(dbStartTime)

		dbStatus := gin.H{
			"status":      "healthy",
			"duration_ms": dbDuration.Milliseconds(),
			"operation":   "Stats",
		}
		if err != nil {
			dbStatus["status"] = "unhealthy"
			dbStatus["error"] = err.Error()
			allHealthy = false
		} else {
			dbStatus["persons"] = stats.PersonCount
			dbStatus["facts"] = stats.FactCount
			dbStatus["rules"] = stats.RuleCount
		}
		checks["database_connectivity"] = dbStatus

		// Engine check: evaluate a trivial query through the full program
		// assembly path, including every stored rule.
		engineStartTime := time.Now()
		_, queryErr := h.kinship.RunQuery(ctx, "person(Id, Name, _)")
		engineDuration := time.Since(engineStartTime)

		engineStatus := gin.H{
			"status":      "healthy",
			"duration_ms": engineDuration.Milliseconds(),
			"operation":   "RunQuery",
		}
		if queryErr != nil {
			engineStatus["status"] = "unhealthy"
			engineStatus["error"] = queryErr.Error()
			allHealthy = false
		}
		checks["query_engine"] = engineStatus
	} else {
		checks["kinship_client"] = gin.H{
			"status": "unhealthy",
			"error":  "client not initialized",
		}
		allHealthy = false
	}

	// Add system health metrics
	systemMetrics := h.getSystemMetrics()
	checks["system"] = gin.H{
		"status":       "healthy",
		"memory_usage": systemMetrics.MemoryUsage,
		"goroutines":   systemMetrics.Goroutines,
		"gc_cycles":    systemMetrics.GCCycles,
		"heap_objects": systemMetrics.HeapObjects,
		"stack_usage":  systemMetrics.StackUsage,
	}

	// Set final response
	totalDuration := time.Since(startTime)
	response["metrics"].(gin.H)["response_time_ms"] = totalDuration.Milliseconds()

	if !allHealthy {
		response["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
	StackUsage  string `json:"stack_usage"`
}

// getSystemMetrics collects current system runtime metrics
func (h *HealthHandler) getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Convert bytes to human-readable format
	memoryUsage := fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024))
	stackUsage := fmt.Sprintf("%.2f MB", float64(m.StackSys)/(1024*1024))

	return SystemMetrics{
		MemoryUsage: memoryUsage,
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
		StackUsage:  stackUsage,
	}
}
