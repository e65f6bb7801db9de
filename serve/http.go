package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ghostline",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests to the metrics listener.",
	},
	[]string{"path", "status"},
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		httpRequestsTotal.WithLabelValues(routePatternOrPath(r), strconv.Itoa(sr.status)).Inc()
	})
}

// routePatternOrPath keeps label cardinality bounded to the registered routes.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusReport is the body of GET /status.
type statusReport struct {
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Documents int             `json:"documents"`
	Sessions  []SessionStatus `json:"sessions"`
}

// newHTTPHandler serves /metrics, /healthz and /status for srv.
func newHTTPHandler(srv *Server, started time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(countRequests)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		report := statusReport{
			Version:   Version,
			Uptime:    time.Since(started).Round(time.Second).String(),
			Documents: srv.docs.Len(),
			Sessions:  srv.Sessions(),
		}
		if report.Sessions == nil {
			report.Sessions = []SessionStatus{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})
	return r
}
