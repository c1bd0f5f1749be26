package metrics

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartPrometheusServer(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	addr, err := StartPrometheusServer(ctx, &wg, &PromServerOpts{
		Logger: zap.New(core),
		Addr:   "127.0.0.1:0",
		Path:   "/prom",
	})
	require.NoError(t, err)

	Queries.WithLabelValues("ok").Inc()
	CatalogRelations.Set(3)

	resp, err := http.Get("http://" + addr.String() + "/prom")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pgview_queries_total{outcome="ok"}`)
	assert.Contains(t, string(body), "pgview_catalog_relations 3")

	cancel()
	wg.Wait()
	assert.Equal(t, 1, logs.FilterMessage("metrics server stopped").Len())
}

func TestStartPrometheusServerAddrInUse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	addr, err := StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	_, err = StartPrometheusServer(context.Background(), &wg, &PromServerOpts{Addr: addr.String()})
	assert.ErrorContains(t, err, "metrics listener")
}

func TestOptionsDefaults(t *testing.T) {
	var opts *PromServerOpts
	eff := opts.withDefaults()
	assert.Equal(t, ":9100", eff.Addr)
	assert.Equal(t, "/metrics", eff.Path)
	assert.NotNil(t, eff.Logger)
}
