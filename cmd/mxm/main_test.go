package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/mxm/fixtures"
	"github.com/fxnlabs/mxm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	e := &env{}
	app := newApp(e, &stdout, &stderr)
	err := app.Run(append([]string{"mxm", "--home", t.TempDir(), "--verbosity", "error"}, args...))
	return stdout.String(), err
}

func TestRunSerial(t *testing.T) {
	out, err := runApp(t, "run", "--quiet", "--size", "16", "--input", "sequential")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:  serial")
	assert.Contains(t, out, "Verified: ok")
	// C[0][0] of the sequential 16×16 product is Σ k*(16k) = 16·Σk² for k < 16
	assert.Contains(t, out, "19840 ")
}

func TestRunSequentialDefaults(t *testing.T) {
	// uint32 at N=128 overflows and wraps; verification must accept it
	out, err := runApp(t, "run", "--quiet", "--input", "sequential")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified: ok")

	out, err = runApp(t, "run", "--quiet", "--input", "sequential", "--size", "600", "--backend", "threads", "--print", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified: ok")
}

func TestRunBackends(t *testing.T) {
	for _, backend := range []string{"serial", "threads", "gpusim"} {
		t.Run(backend, func(t *testing.T) {
			out, err := runApp(t, "run", "--quiet", "--backend", backend, "--size", "33", "--type", "float64", "--blocking=false")
			require.NoError(t, err)
			assert.Contains(t, out, "Backend:  "+backend)
			assert.Contains(t, out, "Verified: ok")
		})
	}
}

func TestRunErrors(t *testing.T) {
	_, err := runApp(t, "run", "--quiet", "--backend", "quantum")
	assert.Error(t, err)

	_, err = runApp(t, "run", "--quiet", "--type", "complex128")
	assert.ErrorContains(t, err, "unsupported element type")

	_, err = runApp(t, "run", "--quiet", "--backend", "gpusim", "--device", "3")
	assert.ErrorContains(t, err, "DeviceIndexError")
}

func TestDevices(t *testing.T) {
	out, err := runApp(t, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "serial:0")
	assert.Contains(t, out, "threads:0")
	assert.Contains(t, out, "gpusim:0")
	assert.Contains(t, out, "Simulated GPU 0")
}

func TestInitWritesTemplate(t *testing.T) {
	home := t.TempDir()
	var stdout, stderr bytes.Buffer
	app := newApp(&env{}, &stdout, &stderr)
	require.NoError(t, app.Run([]string{"mxm", "--home", home, "init"}))

	path := filepath.Join(home, config.DefaultConfigFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	// a second init refuses to overwrite
	app = newApp(&env{}, &stdout, &stderr)
	assert.Error(t, app.Run([]string{"mxm", "--home", home, "init"}))
	app = newApp(&env{}, &stdout, &stderr)
	assert.NoError(t, app.Run([]string{"mxm", "--home", home, "init", "--force"}))
}

func TestLoadConfigPrecedence(t *testing.T) {
	cfg, err := loadConfig("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	cfg, err = loadConfig("../../fixtures/tests/config/valid_config.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, "gpusim", cfg.Accelerator.Backend)

	_, err = loadConfig("does-not-exist.yaml", "")
	assert.Error(t, err)
}
