package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Aggregation metrics
	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelens_aggregations_total",
			Help: "Total number of aggregation requests processed",
		},
		[]string{"status"},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timelens_aggregation_duration_seconds",
			Help:    "Aggregation request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fetch metrics
	EventsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelens_events_fetched_total",
			Help: "Total events fetched from the store, per bucket kind",
		},
		[]string{"kind"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelens_fetch_errors_total",
			Help: "Bucket fetches that degraded to an empty result",
		},
		[]string{"kind"},
	)

	// Discovery cache metrics
	BucketCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelens_bucket_cache_hits_total",
			Help: "Bucket discovery cache hits",
		},
	)

	BucketCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelens_bucket_cache_misses_total",
			Help: "Bucket discovery cache misses",
		},
	)

	// Calendar metrics
	CalendarOnlyEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timelens_calendar_only_events_total",
			Help: "Synthesized calendar-only pseudo-events",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AggregationsTotal,
		AggregationDuration,
		EventsFetched,
		FetchErrors,
		BucketCacheHits,
		BucketCacheMisses,
		CalendarOnlyEvents,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
