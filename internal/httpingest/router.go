// Package httpingest is the correlator's HTTP ingress: POST|PUT /event/,
// backed by the same IngressLog + Ingest-task pipeline the SNMP listener
// uses; GET /event/{index}/{id}, which reads a stored document; and
// POST /resolve/, which logs the request and runs the manual resolve inline.
package httpingest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fluxgate/correlator/internal/correlator"
	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/metrics"
	"github.com/fluxgate/correlator/internal/rules"
)

// Server bundles the dependencies the ingress handlers need.
type Server struct {
	docs      eventstore.Store
	logs      *ingresslog.Store
	rules     *rules.Resolver
	queue     dispatcher.TaskQueue
	resolver  *correlator.Service
	metrics   *metrics.Metrics
	log       *logging.Logger
	csvFields []string
	limiters  *ipLimiters
}

// New constructs an ingress Server.
func New(
	docs eventstore.Store,
	logs *ingresslog.Store,
	resolver *rules.Resolver,
	queue dispatcher.TaskQueue,
	manualResolve *correlator.Service,
	m *metrics.Metrics,
	log *logging.Logger,
	csvFields []string,
	rateLimitPerSec float64,
	rateLimitBurst int,
) *Server {
	return &Server{
		docs: docs, logs: logs, rules: resolver, queue: queue, resolver: manualResolve,
		metrics: m, log: log, csvFields: csvFields,
		limiters: newIPLimiters(rateLimitPerSec, rateLimitBurst),
	}
}

// Router builds the chi router with its middleware chain and routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.rateLimitMiddleware)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/event/", http.HandlerFunc(s.handleEvent))
	r.Get("/event/{index}/{id}", s.handleGetEvent)
	r.Handle("/resolve/", http.HandlerFunc(s.handleResolve))

	if s.metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start)
		s.log.LogIngest(r.Context(), remoteIP(r), ww.Status(), dur)
		if s.metrics != nil {
			s.metrics.IngestRequestsTotal.WithLabelValues(statusClass(ww.Status())).Inc()
			s.metrics.IngestDuration.WithLabelValues(statusClass(ww.Status())).Observe(dur.Seconds())
		}
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}
