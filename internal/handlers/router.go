package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Routes holds what NewRouter mounts. Metrics may be nil.
type Routes struct {
	Identify *IdentifyHandler
	Health   *HealthHandler
	Metrics  http.Handler
	Logger   *slog.Logger
}

// NewRouter wires the HTTP surface.
func NewRouter(rt Routes) *mux.Router {
	logger := rt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(logger), Recover(logger))

	router.HandleFunc("/identify", rt.Identify.Handle).Methods(http.MethodPost)
	router.HandleFunc("/health", rt.Health.Handle).Methods(http.MethodGet)
	if rt.Metrics != nil {
		router.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}
	return router
}
