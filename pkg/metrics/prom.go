package metrics

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collectors updated by the view service and the catalog cache.
var (
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgview_queries_total",
			Help: "Total number of view queries by outcome (ok, validation, backend, internal)",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgview_query_duration_seconds",
			Help:    "Duration of view queries from compilation to joined response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	BranchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgview_branch_duration_seconds",
			Help:    "Duration of the concurrent data and metadata reads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"branch"},
	)

	FiltersPerQuery = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgview_filters_per_query",
			Help:    "Number of compiled filters per view query",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	CatalogRelations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgview_catalog_relations",
			Help: "Number of relations held by the catalog cache",
		},
	)
)

// PromServerOpts configures the metrics listener. Zero fields take the defaults.
type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string        // defaults to ":9100"
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5s
	ReadHeaderTimeout time.Duration // defaults to 3s
}

func (o *PromServerOpts) withDefaults() PromServerOpts {
	eff := PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Logger:            zap.NewNop(),
	}
	if o == nil {
		return eff
	}
	eff.Addr = cmp.Or(o.Addr, eff.Addr)
	eff.Path = cmp.Or(o.Path, eff.Path)
	eff.ShutdownTimeout = cmp.Or(o.ShutdownTimeout, eff.ShutdownTimeout)
	eff.ReadHeaderTimeout = cmp.Or(o.ReadHeaderTimeout, eff.ReadHeaderTimeout)
	if o.Logger != nil {
		eff.Logger = o.Logger
	}
	return eff
}

// StartPrometheusServer binds the metrics listener and serves it until ctx is
// canceled. The bound address is returned so ":0" can be used. wg is released
// once the server has shut down.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) (net.Addr, error) {
	o := opts.withDefaults()
	logger := o.Logger

	ln, err := net.Listen("tcp", o.Addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(o.Path, promhttp.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	served := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(served)
		logger.Info("starting metrics server", zap.Stringer("addr", ln.Addr()), zap.String("path", o.Path))
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-served:
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
			return
		}
		logger.Info("metrics server stopped")
	}()

	return ln.Addr(), nil
}
