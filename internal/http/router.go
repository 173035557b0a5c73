package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter 注册全部路由
func NewRouter(h *Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sensor-data", h.IngestSensorData).Methods(http.MethodPost)
	api.HandleFunc("/classify", h.Classify).Methods(http.MethodPost)
	api.HandleFunc("/patients", h.ListPatients).Methods(http.MethodGet)

	patient := api.PathPrefix("/patients/{id}").Subrouter()
	patient.HandleFunc("/monitor", h.StartMonitoring).Methods(http.MethodPost)
	patient.HandleFunc("/monitor", h.StopMonitoring).Methods(http.MethodDelete)
	patient.HandleFunc("/window", h.GetWindow).Methods(http.MethodGet)
	patient.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	patient.HandleFunc("/stream", h.Stream).Methods(http.MethodGet)
	patient.HandleFunc("/export", h.Export).Methods(http.MethodGet)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	return router
}
