package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend     = "native"
	DefaultThreads     = 1
	DefaultLogLevel    = "info"
	DefaultDataDir     = "data"
	DefaultHistoryPath = "data/history.db"
	DefaultSampleEvery = 10
	DefaultFPS         = 20
	DefaultStepsFrame  = 5
)

type Config struct {
	Engine   EngineConfig  `yaml:"engine"`
	LogLevel string        `yaml:"log_level"`
	DataDir  string        `yaml:"data_dir"`
	History  HistoryConfig `yaml:"history"`
	Watch    WatchConfig   `yaml:"watch"`
}

type EngineConfig struct {
	Backend    string `yaml:"backend"`
	WasmBinary string `yaml:"wasm_binary"`
	ScriptDir  string `yaml:"script_dir"`
	Threads    int    `yaml:"threads"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
	// Every is the sampling interval in timesteps.
	Every int `yaml:"every"`
	// Track lists modifiers as kind/name, e.g. compute/thermo_temp.
	Track []string `yaml:"track"`
}

type WatchConfig struct {
	FPS           int `yaml:"fps"`
	StepsPerFrame int `yaml:"steps_per_frame"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend:   DefaultBackend,
			ScriptDir: ".",
			Threads:   DefaultThreads,
		},
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataDir,
		History: HistoryConfig{
			Path:  DefaultHistoryPath,
			Every: DefaultSampleEvery,
		},
		Watch: WatchConfig{
			FPS:           DefaultFPS,
			StepsPerFrame: DefaultStepsFrame,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "native":
	case "wasm":
		if c.Engine.WasmBinary == "" {
			return fmt.Errorf("config: wasm backend needs engine.wasm_binary")
		}
	default:
		return fmt.Errorf("config: unknown engine backend %q", c.Engine.Backend)
	}
	if c.Engine.Threads < 1 {
		return fmt.Errorf("config: engine.threads must be at least 1, got %d", c.Engine.Threads)
	}
	if c.History.Every < 1 {
		return fmt.Errorf("config: history.every must be at least 1, got %d", c.History.Every)
	}
	if c.Watch.FPS < 1 || c.Watch.StepsPerFrame < 1 {
		return fmt.Errorf("config: watch fps and steps_per_frame must be positive")
	}
	return nil
}
