package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxnlabs/mxm/internal/config"
	"github.com/fxnlabs/mxm/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// env is the state shared by all commands once Before has run.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	home string
}

func main() {
	e := &env{}
	app := newApp(e, os.Stdout, os.Stderr)

	if err := app.Run(os.Args); err != nil {
		if e.log != nil {
			e.log.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func newApp(e *env, stdout, stderr io.Writer) *cli.App {
	var configPath, verbosity string

	return &cli.App{
		Name:      "mxm",
		Usage:     "Run a matrix product on a portable accelerator backend",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "home",
				Value:       config.GetDefaultConfigHome(),
				Usage:       "Path to the mxm home directory",
				EnvVars:     []string{"MXM_HOME"},
				Destination: &e.home,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the configuration file (default: <home>/config.yaml when present)",
				EnvVars:     []string{"MXM_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "verbosity",
				Usage:       "Override the log level (debug, info, warn, error)",
				Destination: &verbosity,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			e.cfg, err = loadConfig(configPath, e.home)
			if err != nil {
				return err
			}
			if verbosity != "" {
				e.cfg.Logger.Verbosity = verbosity
			}
			zapLogger, err := logger.New(e.cfg.Logger.Verbosity, e.cfg.Logger.Format)
			if err != nil {
				return err
			}
			e.log = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand(e),
			devicesCommand(e),
			initCommand(e),
		},
	}
}

// loadConfig reads an explicit path, else <home>/config.yaml if it exists,
// else the built-in defaults.
func loadConfig(path, home string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	if home != "" {
		candidate := filepath.Join(home, config.DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return config.LoadConfig(candidate)
		}
	}
	return config.Default(), nil
}
