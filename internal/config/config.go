// Package config loads the optional YAML project file that sits beside a document.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the project file looked for beside a document.
const FileName = "apidoc.yaml"

// Defaults.
const (
	DefaultAddr     = "localhost:8080"
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// Config is the project configuration.
type Config struct {
	// Values the variable store starts with, these override the document's own
	Vars map[string]any `yaml:"vars"`

	// Request payloads keyed by endpoint name, used for typed request fields
	Payloads map[string]map[string]any `yaml:"payloads"`

	// Overrides @BASEURL if set
	BaseURL string `yaml:"base_url"`

	// Mock server settings
	Server Server `yaml:"server"`

	// Request timeout
	Timeout time.Duration `yaml:"timeout"`

	// Seed for the mock generator, 0 picks a random one
	Seed uint64 `yaml:"seed"`

	// Run every endpoint in mock mode
	Mock bool `yaml:"mock"`
}

// Server configures `apidoc serve`.
type Server struct {
	// Address to listen on
	Addr string `yaml:"addr"`

	// How long to wait for writes to settle before reloading the document
	Debounce time.Duration `yaml:"debounce"`

	// Whether to reload the document when it changes
	Watch bool `yaml:"watch"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Timeout: DefaultTimeout,
		Server: Server{
			Addr:     DefaultAddr,
			Debounce: DefaultDebounce,
			Watch:    true,
		},
	}
}

// Beside returns the path of the project file for a document.
func Beside(document string) string {
	return filepath.Join(filepath.Dir(document), FileName)
}

// Load reads the project file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadOptional is [Load] but a missing file gives the default configuration.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Read decodes a project file from r, missing settings take their default and
// unknown keys are an error.
func Read(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	if len(bytes.TrimSpace(raw)) != 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	for name, value := range cfg.Vars {
		cfg.Vars[name] = normalise(value)
	}

	for endpoint, payload := range cfg.Payloads {
		for key, value := range payload {
			cfg.Payloads[endpoint][key] = normalise(value)
		}
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if c.Server.Debounce < 0 {
		return fmt.Errorf("server.debounce must not be negative, got %s", c.Server.Debounce)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}

	return nil
}

// normalise converts decoded YAML values to the forms decoded JSON takes, all
// numbers become float64.
func normalise(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case map[string]any:
		for key, item := range v {
			v[key] = normalise(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalise(item)
		}
		return v
	default:
		return value
	}
}
