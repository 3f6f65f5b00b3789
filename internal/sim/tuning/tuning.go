// Package tuning loads the server's runtime settings from tuning.yaml.
package tuning

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Listen     string `yaml:"listen"`
	HTTPListen string `yaml:"http_listen"`

	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
	MaxLineBytes   int `yaml:"max_line_bytes"`

	DataDir string `yaml:"data_dir"`
	TickLog bool   `yaml:"tick_log"`
	IndexDB bool   `yaml:"index_db"`

	ParallelIntegration bool `yaml:"parallel_integration"`
	ParallelWorkers     int  `yaml:"parallel_workers"`

	// Once exits after the first session.
	Once bool `yaml:"once"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Defaults() Tuning {
	return Tuning{
		Listen:         "127.0.0.1:8080",
		ReadTimeoutMs:  0,
		WriteTimeoutMs: 5000,
		MaxLineBytes:   8 << 20,
		DataDir:        "./data",
		TickLog:        true,
		IndexDB:        true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Listen = strings.TrimSpace(t.Listen)
	t.HTTPListen = strings.TrimSpace(t.HTTPListen)
	t.DataDir = strings.TrimSpace(t.DataDir)
	t.LogLevel = strings.ToLower(strings.TrimSpace(t.LogLevel))
	t.LogFormat = strings.ToLower(strings.TrimSpace(t.LogFormat))
	if t.MaxLineBytes <= 0 {
		t.MaxLineBytes = 8 << 20
	}
	if t.ParallelWorkers < 0 {
		t.ParallelWorkers = 0
	}
	if t.DataDir == "" {
		t.TickLog = false
		t.IndexDB = false
	}
}

func (t Tuning) Validate() error {
	if t.Listen == "" {
		return fmt.Errorf("listen: required")
	}
	if _, _, err := net.SplitHostPort(t.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if t.HTTPListen != "" {
		if _, _, err := net.SplitHostPort(t.HTTPListen); err != nil {
			return fmt.Errorf("http_listen: %w", err)
		}
	}
	if t.ReadTimeoutMs < 0 || t.WriteTimeoutMs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch t.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown %q", t.LogFormat)
	}
	return nil
}

func (t Tuning) ReadTimeout() time.Duration  { return time.Duration(t.ReadTimeoutMs) * time.Millisecond }
func (t Tuning) WriteTimeout() time.Duration { return time.Duration(t.WriteTimeoutMs) * time.Millisecond }
