package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/fxnlabs/mxm/internal/config"
	"github.com/fxnlabs/mxm/internal/matmul"
	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/fxnlabs/mxm/internal/tracing"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Above this size the result is checked with Freivalds' algorithm instead of
// a full gonum product.
const fullVerifyLimit = 512

type runParams struct {
	size    int
	dtype   string
	input   string
	seed    uint64
	print   int
	verify  bool
	quiet   bool
	timeout time.Duration
}

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Multiply two N×N matrices on the configured accelerator",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Value: 128, Usage: "Matrix dimension N"},
			&cli.StringFlag{Name: "type", Value: "uint32", Usage: "Element type: uint32, int32, int64, float32 or float64"},
			&cli.StringFlag{Name: "input", Value: "random", Usage: "Input matrices: random (1..42) or sequential (i*N+j)"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for random inputs, 0 picks one"},
			&cli.StringFlag{Name: "backend", Usage: "Override the accelerator backend (serial, threads, gpusim)"},
			&cli.IntFlag{Name: "device", Usage: "Override the device index"},
			&cli.IntFlag{Name: "elements-per-thread", Usage: "Override the elements computed per thread"},
			&cli.BoolFlag{Name: "blocking", Usage: "Override whether the queue blocks on every task"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve /metrics on this address while running"},
			&cli.BoolFlag{Name: "trace", Usage: "Print queue task spans to stderr"},
			&cli.BoolFlag{Name: "verify", Value: true, Usage: "Check the result against a host computation"},
			&cli.IntFlag{Name: "print", Value: 5, Usage: "Print the top-left K×K corner of C"},
			&cli.BoolFlag{Name: "quiet", Usage: "Do not print the banner"},
			&cli.DurationFlag{Name: "timeout", Usage: "Abort waiting for the queue after this long"},
		},
		Action: func(c *cli.Context) error {
			cfg := *e.cfg
			applyRunFlags(c, &cfg)
			p := runParams{
				size:    c.Int("size"),
				dtype:   c.String("type"),
				input:   c.String("input"),
				seed:    c.Uint64("seed"),
				print:   c.Int("print"),
				verify:  c.Bool("verify"),
				quiet:   c.Bool("quiet"),
				timeout: c.Duration("timeout"),
			}
			return run(c.Context, &cfg, p, e.log, c.App.Writer, c.App.ErrWriter)
		},
	}
}

// applyRunFlags lets command line flags override the loaded configuration.
func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("backend") {
		cfg.Accelerator.Backend = c.String("backend")
	}
	if c.IsSet("device") {
		cfg.Accelerator.Device = c.Int("device")
	}
	if c.IsSet("elements-per-thread") {
		cfg.Accelerator.ElementsPerThread = c.Int("elements-per-thread")
	}
	if c.IsSet("blocking") {
		cfg.Accelerator.Blocking = c.Bool("blocking")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.ListenAddress = c.String("metrics-addr")
	}
	if c.IsSet("trace") {
		cfg.Tracing.Enabled = c.Bool("trace")
	}
}

func run(ctx context.Context, cfg *config.Config, p runParams, log *zap.Logger, stdout, stderr io.Writer) error {
	if !p.quiet {
		printBanner(stdout)
	}

	var mgr *accel.Manager
	app := fx.New(
		appOptions(cfg, log, stderr),
		fx.Populate(&mgr),
		fx.Invoke(func(*metrics.Server, tracing.Shutdown) {}),
	)
	if err := app.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start")
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			log.Warn("failed to stop cleanly", zap.Error(err))
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	opts := matmul.Options{
		DeviceIndex:       cfg.Accelerator.Device,
		ElementsPerThread: cfg.Accelerator.ElementsPerThread,
		Blocking:          cfg.Accelerator.Blocking,
		QueueDepth:        cfg.Accelerator.QueueDepth,
	}

	switch strings.ToLower(p.dtype) {
	case "uint32":
		return multiplyAndReport[uint32](ctx, mgr, p, opts, log, stdout)
	case "int32":
		return multiplyAndReport[int32](ctx, mgr, p, opts, log, stdout)
	case "int64":
		return multiplyAndReport[int64](ctx, mgr, p, opts, log, stdout)
	case "float32":
		return multiplyAndReport[float32](ctx, mgr, p, opts, log, stdout)
	case "float64":
		return multiplyAndReport[float64](ctx, mgr, p, opts, log, stdout)
	}
	return fmt.Errorf("unsupported element type %q", p.dtype)
}

func multiplyAndReport[T accel.Elem](ctx context.Context, mgr *accel.Manager, p runParams, opts matmul.Options, log *zap.Logger, out io.Writer) error {
	n := p.size
	if n < 1 {
		return fmt.Errorf("matrix size must be at least 1, got %d", n)
	}

	seed := p.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var a, b []T
	switch p.input {
	case "random":
		a = matmul.Random[T](rng, n, 1, 42)
		b = matmul.Random[T](rng, n, 1, 42)
	case "sequential":
		a = matmul.Sequential[T](n)
		b = matmul.Sequential[T](n)
	default:
		return fmt.Errorf("unknown input %q", p.input)
	}

	res, err := matmul.Multiply(ctx, mgr, a, b, n, opts, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Backend:  %s (%s)\n", res.Backend, res.Device)
	fmt.Fprintf(out, "WorkDiv:  %s\n", res.WorkDiv)
	fmt.Fprintf(out, "Elapsed:  %s (%.3f GFLOPS)\n", res.Duration, res.GFLOPS)
	if p.input == "random" {
		fmt.Fprintf(out, "Seed:     %d\n", seed)
	}

	if p.verify {
		if err := verify(rng, a, b, res.C, n); err != nil {
			return err
		}
		fmt.Fprintln(out, "Verified: ok")
	}

	if k := min(p.print, n); k > 0 {
		printCorner(out, res.C, n, k)
	}
	return nil
}

func verify[T accel.Elem](rng *rand.Rand, a, b, c []T, n int) error {
	tol := tolerance[T]()
	if n <= fullVerifyLimit {
		return errors.Wrap(matmul.Verify(a, b, c, n, tol), "verification failed")
	}
	if !matmul.FreivaldsVerify(rng, a, b, c, n, 10, tol) {
		return errors.New("verification failed: Freivalds check rejected the product")
	}
	return nil
}

// tolerance is exact for integers and relative for floats.
func tolerance[T accel.Elem]() float64 {
	var zero T
	switch any(zero).(type) {
	case float32:
		return 1e-4
	case float64:
		return 1e-9
	}
	return 0
}

func printCorner[T accel.Elem](out io.Writer, c []T, n, k int) {
	for _, row := range matmul.Rows(c, n)[:k] {
		cells := make([]string, k)
		for j := 0; j < k; j++ {
			cells[j] = fmt.Sprint(row[j])
		}
		fmt.Fprintln(out, strings.Join(cells, " "))
	}
}
