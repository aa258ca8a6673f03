//go:build integration

package integration

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"testing"

	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/fxnlabs/mxm/internal/config"
	"github.com/fxnlabs/mxm/internal/logger"
	"github.com/fxnlabs/mxm/internal/matmul"
	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newTestConfig(t *testing.T) *config.Config {
	cfg, err := config.LoadConfig("../../fixtures/tests/config/valid_config.yaml")
	require.NoError(t, err)
	cfg.Logger.Verbosity = "debug"
	cfg.Metrics.ListenAddress = "127.0.0.1:0"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, targets ...interface{}) *fxtest.App {
	return fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
			},
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*accel.Manager, error) {
				kind, err := accel.ParseKind(cfg.Accelerator.Backend)
				if err != nil {
					return nil, err
				}
				mgr, err := accel.NewManager(kind, accel.Options{
					HostMemory: uint64(cfg.Accelerator.HostMemory),
					Workers:    cfg.Accelerator.Workers,
					GPUSim: accel.GPUSimOptions{
						Devices:         cfg.Accelerator.GPUSim.Devices,
						Memory:          uint64(cfg.Accelerator.GPUSim.Memory),
						MultiProcessors: cfg.Accelerator.GPUSim.MultiProcessors,
					},
				}, log)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{OnStop: func(context.Context) error { return mgr.Cleanup() }})
				return mgr, nil
			},
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *metrics.Server {
				srv := metrics.NewServer(cfg.Metrics.ListenAddress, log)
				lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
				return srv
			},
		),
		fx.Populate(targets...),
	)
}

func TestMatmul_EndToEnd(t *testing.T) {
	var mgr *accel.Manager
	var srv *metrics.Server
	var log *zap.Logger

	cfg := newTestConfig(t)
	app := newApp(t, cfg, &mgr, &srv, &log)
	app.RequireStart()
	defer app.RequireStop()

	require.True(t, mgr.IsAccelerated())
	assert.Equal(t, "gpusim", mgr.BackendType())

	rng := rand.New(rand.NewPCG(42, 42))
	n := 128
	a := matmul.Random[uint32](rng, n, 1, 42)
	b := matmul.Random[uint32](rng, n, 1, 42)

	res, err := matmul.Multiply(context.Background(), mgr, a, b, n, matmul.Options{
		DeviceIndex:       cfg.Accelerator.Device,
		ElementsPerThread: cfg.Accelerator.ElementsPerThread,
		Blocking:          cfg.Accelerator.Blocking,
		QueueDepth:        cfg.Accelerator.QueueDepth,
	}, log)
	require.NoError(t, err)
	require.NoError(t, matmul.Verify(a, b, res.C, n, 0))
	assert.Equal(t, "Simulated GPU 1", res.Device)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `mxm_backend_total{backend="gpusim"}`)
	assert.Contains(t, string(body), "mxm_size 128")
	assert.Contains(t, string(body), `accel_queue_tasks_total{kind="kernel",status="ok"}`)
}

func TestMatmul_FallbackToSerial(t *testing.T) {
	var mgr *accel.Manager

	cfg := newTestConfig(t)
	cfg.Accelerator.GPUSim.Devices = 0
	cfg.Accelerator.Device = 0
	app := newApp(t, cfg, &mgr)
	app.RequireStart()
	defer app.RequireStop()

	assert.False(t, mgr.IsAccelerated())
	assert.Equal(t, "serial", mgr.BackendType())

	a := matmul.Sequential[float64](9)
	res, err := matmul.Multiply(context.Background(), mgr, a, a, 9, matmul.Options{}, nil)
	require.NoError(t, err)
	assert.NoError(t, matmul.Verify(a, a, res.C, 9, 1e-12))
}
