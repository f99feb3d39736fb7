// Package routes registers all HTTP routes for the API.
package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/scanforge/api/internal/infra/http"
	"github.com/scanforge/api/internal/infra/http/handler"
	"github.com/scanforge/api/internal/infra/websocket"
)

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Scan      *handler.ScanHandler
	WebSocket *websocket.Handler
}

// Register registers all application routes. This keeps route definitions in
// the infrastructure layer, not in main.
func Register(router Router, h Handlers) {
	// Health routes (public)
	router.GET("/healthz", h.Health.Healthz)
	router.GET("/readyz", h.Health.Readyz)
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Scan lifecycle routes
	router.Group("/api/v1/scans", func(r Router) {
		r.POST("/", h.Scan.Submit)
		r.GET("/", h.Scan.List)
		r.GET("/{id}/status", h.Scan.Status)
		r.GET("/{id}", h.Scan.Results)
	})

	// Live progress stream
	if h.WebSocket != nil {
		router.GET("/api/v1/ws/scans/{id}", h.WebSocket.ServeWS)
	}
}
