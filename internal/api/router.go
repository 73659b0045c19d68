package api

import (
	"net/http"
	"time"

	"github.com/randytsao24/routeplanner/internal/api/handlers"
)

// Deps are the services the HTTP layer talks to
type Deps struct {
	Planner  handlers.RoutePlanner
	Arrivals handlers.ArrivalsProvider
	Catalog  handlers.CatalogStats
	Timeout  time.Duration
}

// NewRouter creates and configures the HTTP router with all routes and middleware
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(deps.Catalog)
	rootHandler := handlers.NewRootHandler()
	plannerHandler := handlers.NewPlannerHandler(deps.Planner)
	arrivalsHandler := handlers.NewArrivalsHandler(deps.Arrivals)

	// Core routes
	mux.HandleFunc("GET /{$}", rootHandler.Index)
	mux.HandleFunc("GET /api", rootHandler.Index)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("/", rootHandler.NotFound)

	// Planning
	mux.HandleFunc("GET /stations", plannerHandler.ListStations)
	mux.HandleFunc("GET /plan-route", plannerHandler.PlanRoute)
	mux.HandleFunc("POST /plan-route", plannerHandler.PlanRoute)
	mux.HandleFunc("GET /nearest", plannerHandler.Nearest)

	// Live arrivals
	mux.HandleFunc("GET /by-location", arrivalsHandler.ByLocation)
	mux.HandleFunc("GET /by-route/{route}", arrivalsHandler.ByRoute)
	mux.HandleFunc("GET /by-id/{ids}", arrivalsHandler.ByID)
	mux.HandleFunc("GET /routes", arrivalsHandler.Routes)

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	// Apply middleware stack
	handler := Chain(mux,
		RequestID,
		Recovery,
		Logging,
		CORS,
		Timeout(timeout),
	)

	return handler
}
