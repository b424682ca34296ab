package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	RunStoreMemory = "memory"
	RunStoreSQLite = "sqlite"
	RunStoreNone   = "none"
)

type Runtime struct {
	HTTPAddr      string `yaml:"http_addr"`
	CacheMaxItems int    `yaml:"cache_max_items"`
	MaxSteps      int    `yaml:"max_steps"`
	ObsBuffer     int    `yaml:"obs_buffer"`
	LogLevel      string `yaml:"log_level"`
	// RunStore is "memory", "none" or "sqlite:<path>".
	RunStore    string `yaml:"run_store"`
	RunStoreMax int    `yaml:"run_store_max"`
	Tracing     bool   `yaml:"tracing"`
	ServiceName string `yaml:"service_name"`
}

func Defaults() Runtime {
	return Runtime{
		HTTPAddr:      ":8080",
		CacheMaxItems: 1024,
		MaxSteps:      100,
		ObsBuffer:     4096,
		LogLevel:      "info",
		RunStore:      RunStoreMemory,
		RunStoreMax:   1000,
		ServiceName:   "workflow-builder",
	}
}

// Load starts from Defaults, applies the YAML file named by WORKFLOW_CONFIG
// when set, then the environment. Invalid numeric env values are ignored.
func Load() (Runtime, error) {
	cfg := Defaults()

	if path := os.Getenv("WORKFLOW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.CacheMaxItems = getenvInt("WORKFLOW_CACHE_MAX_ITEMS", cfg.CacheMaxItems, 1)
	cfg.MaxSteps = getenvInt("WORKFLOW_MAX_STEPS", cfg.MaxSteps, 1)
	cfg.ObsBuffer = getenvInt("WORKFLOW_OBS_BUFFER", cfg.ObsBuffer, 1)
	cfg.LogLevel = getenv("WORKFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.RunStore = getenv("WORKFLOW_RUNSTORE", cfg.RunStore)
	cfg.RunStoreMax = getenvInt("WORKFLOW_RUNSTORE_MAX", cfg.RunStoreMax, 0)
	cfg.Tracing = getenvBool("WORKFLOW_TRACING", cfg.Tracing)
	cfg.ServiceName = getenv("WORKFLOW_SERVICE_NAME", cfg.ServiceName)

	if _, _, err := cfg.RunStoreTarget(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RunStoreTarget splits RunStore into its kind and, for sqlite, the path.
func (r Runtime) RunStoreTarget() (kind, path string, err error) {
	raw := strings.TrimSpace(r.RunStore)
	switch {
	case raw == "" || raw == RunStoreMemory:
		return RunStoreMemory, "", nil
	case raw == RunStoreNone:
		return RunStoreNone, "", nil
	case strings.HasPrefix(raw, RunStoreSQLite+":"):
		path = strings.TrimPrefix(raw, RunStoreSQLite+":")
		if path == "" {
			return "", "", fmt.Errorf("run store %q: sqlite path is empty", raw)
		}
		return RunStoreSQLite, path, nil
	}
	return "", "", fmt.Errorf("unknown run store %q (want memory, none or sqlite:<path>)", raw)
}

// Logger builds a production zap logger at LogLevel. Unknown levels fall
// back to info.
func (r Runtime) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(r.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback, min int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
