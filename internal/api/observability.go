package api

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duel-arena/internal/match"
)

// Metrics with bounded cardinality (no per-match or per-actor labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167},
	})

	matchesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_matches_active",
		Help: "Matches currently ticking",
	})

	matchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_matches_completed_total",
		Help: "Completed matches by end reason",
	}, []string{"reason"}) // bounded: ko, double_ko, forfeit, timeout, abandoned

	inputsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_inputs_rejected_total",
		Help: "Inputs refused by validation",
	}, []string{"reason"})

	inputsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_inputs_rate_limited_total",
		Help: "Inputs dropped by the per-connection limiter",
	})

	resultsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_results_recorded_total",
		Help: "Result sink writes by outcome",
	}, []string{"status"}) // ok, error

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // rate_limit, origin, auth, ws_ip_limit, ws_total_limit

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket frames by direction",
	}, []string{"direction"}) // in, out, dropped
)

// PromMetrics reports simulation events to Prometheus. It satisfies
// match.Metrics.
type PromMetrics struct{}

var _ match.Metrics = PromMetrics{}

func (PromMetrics) ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }
func (PromMetrics) MatchStarted()               { matchesActive.Inc() }
func (PromMetrics) InputRateLimited()           { inputsRateLimited.Inc() }

func (PromMetrics) MatchCompleted(reason string, started bool) {
	if started {
		matchesActive.Dec()
	}
	matchesCompleted.WithLabelValues(reason).Inc()
}

func (PromMetrics) InputRejected(reason string) {
	inputsRejected.WithLabelValues(reason).Inc()
}

// MeteredSink counts writes through a result sink.
type MeteredSink struct {
	Next match.ResultSink
}

func (s MeteredSink) RecordResult(ctx context.Context, r match.Result) error {
	err := s.Next.RecordResult(ctx, r)
	status := "ok"
	if err != nil {
		status = "error"
	}
	resultsRecorded.WithLabelValues(status).Inc()
	return err
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

func countWSMessage(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}

// requestMetrics records latency per chi route pattern, keeping the
// endpoint label bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	AllowExternal bool // permit a non-loopback ListenAddr
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// NewDebugServer builds the pprof and /metrics server, or nil when disabled.
// The address is forced onto loopback unless AllowExternal is set.
func NewDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		log.Println("⚠️ Debug server forced to localhost")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	log.Printf("📊 Debug server on %s (pprof /debug/pprof/, metrics /metrics)", cfg.ListenAddr)
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
