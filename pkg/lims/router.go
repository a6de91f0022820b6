package lims

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/labtrack/lims/pkg/common/middleware"
	"github.com/labtrack/lims/pkg/observability/metrics"
)

type RouterOptions struct {
	MaxRequestBody int64
	CORS           bool
	Metrics        *metrics.Metrics
}

// NewRouter wires health, metrics and the API under APIPrefix behind the
// standard middleware chain.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(opts.Metrics.Middleware)
	if opts.CORS {
		router.Use(middleware.CORS)
	}
	if opts.MaxRequestBody > 0 {
		router.Use(middleware.BodyLimit(opts.MaxRequestBody))
	}

	router.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.HandleReady).Methods(http.MethodGet)
	router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix(APIPrefix).Subrouter()
	h.Register(api)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: http.StatusText(http.StatusNotFound), Message: "no such route"})
	})
	return router
}
