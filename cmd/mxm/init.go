package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxnlabs/mxm/fixtures"
	"github.com/fxnlabs/mxm/internal/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func initCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config.yaml into the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing configuration"},
		},
		Action: func(c *cli.Context) error {
			path, err := writeConfigTemplate(e.home, c.Bool("force"))
			if err != nil {
				return err
			}
			e.log.Info("Configuration written", zap.String("path", path))
			fmt.Fprintln(c.App.Writer, path)
			return nil
		},
	}
}

func writeConfigTemplate(home string, force bool) (string, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(home, config.DefaultConfigFile)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
