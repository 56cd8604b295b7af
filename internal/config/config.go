package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds persistent defaults loaded from config files.
type Config struct {
	Serve    ServeConfig    `yaml:"serve"`
	Client   ClientConfig   `yaml:"client"`
	Export   ExportConfig   `yaml:"export"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ServeConfig holds relay server defaults.
type ServeConfig struct {
	Addr           string `yaml:"addr"`
	Arity          int    `yaml:"arity"`
	DataCapacity   int    `yaml:"data_capacity"`
	TextCapacity   int    `yaml:"text_capacity"`
	Mode           string `yaml:"mode"`
	Redact         string `yaml:"redact"`
	RedactPatterns string `yaml:"redact_patterns"`
	Page           string `yaml:"page"`
	Gzip           bool   `yaml:"gzip"`
	Audit          string `yaml:"audit"`
	MaxBatch       int    `yaml:"max_batch"`
	WriteTimeout   string `yaml:"write_timeout"`
	TLSCert        string `yaml:"tls_cert"`
	TLSKey         string `yaml:"tls_key"`
}

// ClientConfig holds defaults for commands that connect to a server.
type ClientConfig struct {
	Target     string `yaml:"target"`
	MaxBackoff string `yaml:"max_backoff"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Format string `yaml:"format"`
	Upload string `yaml:"upload"`
}

// DefaultsConfig holds global defaults.
type DefaultsConfig struct {
	Timeout string `yaml:"timeout"`
	Verbose bool   `yaml:"verbose"`
}

// Load reads config from ~/.splot/config.yaml then CWD .splot.yaml.
// CWD config values override home config. Missing files are not errors.
// Environment variables (SPLOT_*) override config file values.
func Load() *Config {
	cfg := &Config{}

	if home, err := os.UserHomeDir(); err == nil {
		_ = loadFile(filepath.Join(home, ".splot", "config.yaml"), cfg)
	}
	_ = loadFile(".splot.yaml", cfg)

	applyEnv(cfg)
	return cfg
}

// LoadFrom reads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setString("SPLOT_SERVE_ADDR", &cfg.Serve.Addr)
	setInt("SPLOT_SERVE_ARITY", &cfg.Serve.Arity)
	setInt("SPLOT_SERVE_DATA_CAPACITY", &cfg.Serve.DataCapacity)
	setInt("SPLOT_SERVE_TEXT_CAPACITY", &cfg.Serve.TextCapacity)
	setString("SPLOT_SERVE_MODE", &cfg.Serve.Mode)
	setString("SPLOT_SERVE_REDACT", &cfg.Serve.Redact)
	setString("SPLOT_SERVE_REDACT_PATTERNS", &cfg.Serve.RedactPatterns)
	setString("SPLOT_SERVE_PAGE", &cfg.Serve.Page)
	setBool("SPLOT_SERVE_GZIP", &cfg.Serve.Gzip)
	setString("SPLOT_SERVE_AUDIT", &cfg.Serve.Audit)
	setInt("SPLOT_SERVE_MAX_BATCH", &cfg.Serve.MaxBatch)
	setString("SPLOT_SERVE_WRITE_TIMEOUT", &cfg.Serve.WriteTimeout)
	setString("SPLOT_SERVE_TLS_CERT", &cfg.Serve.TLSCert)
	setString("SPLOT_SERVE_TLS_KEY", &cfg.Serve.TLSKey)
	setString("SPLOT_TARGET", &cfg.Client.Target)
	setString("SPLOT_MAX_BACKOFF", &cfg.Client.MaxBackoff)
	setString("SPLOT_EXPORT_FORMAT", &cfg.Export.Format)
	setString("SPLOT_EXPORT_UPLOAD", &cfg.Export.Upload)
	setString("SPLOT_TIMEOUT", &cfg.Defaults.Timeout)
	setBool("SPLOT_VERBOSE", &cfg.Defaults.Verbose)
}
