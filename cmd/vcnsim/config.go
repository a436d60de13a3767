package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// fileConfig is the vcnsim configuration file (~/.config/vcnsim/config.yaml).
// Numeric fields are pointers so "not set" is distinguishable from zero.
type fileConfig struct {
	MasksPath string `yaml:"masks_path"`
	Layer     string `yaml:"layer"`
	Mode      string `yaml:"mode"`

	Seed      *int64 `yaml:"seed"`
	MaxCycles *int64 `yaml:"max_cycles"`

	DRAMLatency   *int64   `yaml:"dram_latency"`
	DRAMBandwidth *float64 `yaml:"dram_bandwidth"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "vcnsim", "config.yaml")
}

// applyRunConfig applies config file defaults to run command variables when
// the corresponding CLI flag was not explicitly set.
func applyRunConfig(c *cli.Command, cfg fileConfig) {
	if cfg.MasksPath != "" && !c.IsSet("masks") {
		masksPath = cfg.MasksPath
	}
	if cfg.Layer != "" && !c.IsSet("layer") {
		layerName = cfg.Layer
	}
	if cfg.Mode != "" && !c.IsSet("mode") {
		modeName = cfg.Mode
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.MaxCycles != nil && !c.IsSet("max-cycles") {
		maxCycles = *cfg.MaxCycles
	}
	if cfg.DRAMLatency != nil && !c.IsSet("dram-latency") {
		dramLatency = *cfg.DRAMLatency
	}
	if cfg.DRAMBandwidth != nil && !c.IsSet("dram-bandwidth") {
		dramBandwidth = *cfg.DRAMBandwidth
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg fileConfig, addr *string) {
	applyRunConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// loadFileConfig reads the config file, returning a zero config when absent.
func loadFileConfig() fileConfig {
	path := configFilePath()
	if path == "" {
		return fileConfig{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}
	}
	return cfg
}
