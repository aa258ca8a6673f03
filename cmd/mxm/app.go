package main

import (
	"context"
	"io"

	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/fxnlabs/mxm/internal/config"
	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/fxnlabs/mxm/internal/tracing"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// accelOptions maps the accelerator section of the config to backend options.
func accelOptions(cfg *config.Config) accel.Options {
	a := cfg.Accelerator
	return accel.Options{
		HostMemory: uint64(a.HostMemory),
		Workers:    a.Workers,
		GPUSim: accel.GPUSimOptions{
			Devices:         a.GPUSim.Devices,
			Memory:          uint64(a.GPUSim.Memory),
			MultiProcessors: a.GPUSim.MultiProcessors,
		},
	}
}

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*accel.Manager, error) {
	kind, err := accel.ParseKind(cfg.Accelerator.Backend)
	if err != nil {
		return nil, err
	}
	mgr, err := accel.NewManager(kind, accelOptions(cfg), log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return mgr.Cleanup()
		},
	})
	return mgr, nil
}

func newMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *metrics.Server {
	srv := metrics.NewServer(cfg.Metrics.ListenAddress, log)
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
	return srv
}

func newTracing(lc fx.Lifecycle, cfg *config.Config, out io.Writer) (tracing.Shutdown, error) {
	if !cfg.Tracing.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := tracing.Init(out)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return shutdown, nil
}

// appOptions builds the fx graph shared by the commands. traceOut receives
// exported spans when tracing is enabled.
func appOptions(cfg *config.Config, log *zap.Logger, traceOut io.Writer) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newManager,
			newMetricsServer,
			func(lc fx.Lifecycle, cfg *config.Config) (tracing.Shutdown, error) {
				return newTracing(lc, cfg, traceOut)
			},
		),
	)
}
