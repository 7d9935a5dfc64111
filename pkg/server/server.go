package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/server/handlers"
	"github.com/soundprediction/kinship/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	router  *gin.Engine
	kinship kinship.Kinship
	server  *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, client kinship.Kinship) *Server {
	return &Server{
		config:  cfg,
		kinship: client,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.kinship)
	graphHandler := handlers.NewGraphHandler(s.kinship)
	queryHandler := handlers.NewQueryHandler(s.kinship)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/healthcheck", healthHandler.HealthCheck) // Legacy endpoint
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck) // Kubernetes liveness probe
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Graph writes
		v1.POST("/persons", graphHandler.AddPerson)
		v1.PATCH("/persons/:id", graphHandler.UpdatePerson)
		v1.GET("/persons/:id", graphHandler.GetPerson)
		v1.POST("/facts", graphHandler.AddFact)
		v1.DELETE("/clear", graphHandler.ClearGraph)

		// Rule management
		rulesGroup := v1.Group("/rules")
		{
			rulesGroup.POST("", graphHandler.AddRule)
			rulesGroup.GET("", graphHandler.ListRules)
			rulesGroup.GET("/:name", graphHandler.GetRule)
		}

		// Query and schema
		v1.POST("/query", queryHandler.RunQuery)
		v1.GET("/relation-types", queryHandler.RelationTypes)
		v1.GET("/person-schema", queryHandler.PersonSchema)
		v1.GET("/stats", queryHandler.Stats)
	}
}

// Start starts the server
func (s *Server) Start() error {
	fmt.Printf("Starting server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware extracts context information from headers
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userID := c.GetHeader("X-User-ID")
		if userID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyUserID, userID)
		}

		sessionID := c.GetHeader("X-Session-ID")
		if sessionID != "" {
			ctx = context.WithValue(ctx, types.ContextKeySessionID, sessionID)
		}

		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
