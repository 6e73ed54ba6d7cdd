package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Realtime.BrokerURL == "" {
		errs = append(errs, errors.New("realtime.broker_url is required"))
	} else if err := validateURL(cfg.Realtime.BrokerURL); err != nil {
		errs = append(errs, fmt.Errorf("realtime.broker_url: %w", err))
	}
	if cfg.Realtime.SignalURL == "" {
		errs = append(errs, errors.New("realtime.signal_url is required"))
	} else if err := validateURL(cfg.Realtime.SignalURL); err != nil {
		errs = append(errs, fmt.Errorf("realtime.signal_url: %w", err))
	}
	if cfg.Realtime.EventsURL == "" {
		errs = append(errs, errors.New("realtime.events_url is required"))
	} else if err := validateURL(cfg.Realtime.EventsURL); err != nil {
		errs = append(errs, fmt.Errorf("realtime.events_url: %w", err))
	}
	if cfg.Realtime.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("realtime.max_retries %d is negative", cfg.Realtime.MaxRetries))
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; conversations will not survive a restart")
	}
	if cfg.Title.APIKey == "" {
		slog.Info("title.api_key is empty; conversation titles fall back to the first utterance")
	}
	if cfg.Title.APIKey != "" && cfg.Title.Model == "" {
		errs = append(errs, errors.New("title.model is required when title.api_key is set"))
	}

	return errors.Join(errs...)
}

// validateURL rejects values the http client would only fail on at request
// time.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL %q must be absolute", raw)
	}
	return nil
}
