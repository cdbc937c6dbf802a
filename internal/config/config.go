package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wagate/config.toml. It is resolved once at
// startup; the lifecycle core only ever sees the resolved values.
type Config struct {
	DefaultIdentity      string `toml:"default_identity"`
	QRWindowSeconds      int    `toml:"qr_window_seconds"`
	ReconnectMaxAttempts int    `toml:"reconnect_max_attempts"`
	ReconnectDelayMillis int    `toml:"reconnect_delay_ms"`
	EngineDrainMillis    int    `toml:"engine_drain_ms"`
	MediaDir             string `toml:"media_dir"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DefaultIdentity:      "default",
		QRWindowSeconds:      30,
		ReconnectMaxAttempts: 10,
		ReconnectDelayMillis: 5000,
		EngineDrainMillis:    2000,
	}
}

// Load reads config from the given path. A missing file yields the defaults;
// any present field overrides its default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.DefaultIdentity == "" {
		cfg.DefaultIdentity = "default"
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// QRWindow is how long a connect call waits for a QR code or a completed
// login before returning a "still working" result.
func (c *Config) QRWindow() time.Duration {
	return time.Duration(c.QRWindowSeconds) * time.Second
}

// ReconnectDelay is the fixed delay between reconnect attempts.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMillis) * time.Millisecond
}

// EngineDrain is the settle interval after closing an engine instance before
// its working directory is considered released.
func (c *Config) EngineDrain() time.Duration {
	return time.Duration(c.EngineDrainMillis) * time.Millisecond
}
