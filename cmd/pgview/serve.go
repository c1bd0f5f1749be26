package pgview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/pgview/pkg/config"
	"github.com/edgeflare/pgview/pkg/httputil"
	mw "github.com/edgeflare/pgview/pkg/httputil/middleware"
	"github.com/edgeflare/pgview/pkg/metrics"
	pg "github.com/edgeflare/pgview/pkg/pgx"
	"github.com/edgeflare/pgview/pkg/pgx/schema"
	"github.com/edgeflare/pgview/pkg/rest"
	"github.com/edgeflare/pgview/pkg/secret"
	"github.com/edgeflare/pgview/pkg/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the view query server",
	Long:  `Connects to PostgreSQL and serves POST {baseURL}/view/query until interrupted`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("conn-string", "c", "", "PostgreSQL connection string, may contain __NAME__ secret placeholders")
	f.StringP("listen-addr", "l", "", "listen address")
	f.String("base-url", "", "path prefix for the query routes")
	f.String("target-key", "", "request body key naming the view")
	f.Duration("query-timeout", 0, "deadline for one query, data and metadata together")
	f.Bool("catalog", true, "whitelist targets and columns against the catalog cache")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-addr", "", "metrics listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewPool(ctx, pg.PoolConfig{
		ConnString:     cfg.PG.ConnString,
		MaxConns:       cfg.PG.MaxConns,
		MinConns:       cfg.PG.MinConns,
		ConnectTimeout: cfg.PG.ConnectTimeout,
	}, secret.Env{Prefix: cfg.PG.SecretPrefix}, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var catalog rest.Catalog
	if cfg.Catalog.Enabled {
		cache := schema.NewCache(pool, logger)
		if err := cache.Init(ctx); err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		defer cache.Close()
		catalog = cache
	}

	svc := view.NewService(pool,
		view.WithCatalog(catalog),
		view.WithLogger(logger),
		view.WithTimeout(cfg.Query.Timeout),
	)
	server, err := rest.NewServer(rest.Options{
		Service:      svc,
		Pinger:       pool,
		Catalog:      catalog,
		Logger:       logger,
		BaseURL:      cfg.Server.BaseURL,
		TargetKey:    cfg.Query.TargetKey,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Info: schema.OpenAPIInfo{
			Title:       "pgview",
			Description: "Filtered queries against PostgreSQL views",
			Version:     Version,
		},
	})
	if err != nil {
		return err
	}

	r, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}
	server.Register(r)

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		if _, err := metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Logger: logger,
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
		}); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := r.ListenAndServe(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()

	logger.Info("server gracefully stopped")
	return nil
}

// newRouter returns a router with the default middleware stack installed.
func newRouter(cfg *config.Config, logger *zap.Logger) (*httputil.Router, error) {
	stack, err := mw.Stack(mw.StackOptions{
		Logger: logger,
		CORS: &mw.CORSOptions{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", "Authorization", mw.RequestIDHeader},
		},
		Allowlist: mw.IPAllowlistOptions{
			Allowed:  cfg.Server.IPAllowlist,
			AllowTLS: cfg.Server.AllowTLS,
		},
		DisableAccessLog: logLevel == "none",
	})
	if err != nil {
		return nil, fmt.Errorf("server.ipAllowlist: %w", err)
	}

	r := httputil.NewRouter(
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = cfg.Server.ReadHeaderTimeout
		}),
	)
	r.Use(stack[0], stack[1:]...)
	return r, nil
}
