package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "config.yaml"

// ByteSize is a size in bytes that reads humanized values such as "512MiB"
// or "8 GB" from YAML.
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", value.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return humanize.IBytes(uint64(b)), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Format    string `yaml:"format"`
	} `yaml:"logger"`
	Accelerator struct {
		Backend           string   `yaml:"backend"`
		Device            int      `yaml:"device"`
		Workers           int      `yaml:"workers"`
		Blocking          bool     `yaml:"blocking"`
		QueueDepth        int      `yaml:"queueDepth"`
		ElementsPerThread int      `yaml:"elementsPerThread"`
		HostMemory        ByteSize `yaml:"hostMemory"`
		GPUSim            struct {
			Devices         int      `yaml:"devices"`
			Memory          ByteSize `yaml:"memory"`
			MultiProcessors int      `yaml:"multiProcessors"`
		} `yaml:"gpusim"`
	} `yaml:"accelerator"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Format = "console"
	c.Accelerator.Backend = "serial"
	c.Accelerator.Blocking = true
	c.Accelerator.QueueDepth = 64
	c.Accelerator.ElementsPerThread = 8
	c.Accelerator.HostMemory = 8 << 30
	c.Accelerator.GPUSim.Devices = 1
	c.Accelerator.GPUSim.Memory = 4 << 30
	c.Accelerator.GPUSim.MultiProcessors = 8
	return &c
}

// LoadConfig reads path on top of the defaults. A missing key keeps its
// default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// GetDefaultConfigHome returns the directory holding the mxm configuration.
func GetDefaultConfigHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mxm")
	}
	return ".mxm"
}
