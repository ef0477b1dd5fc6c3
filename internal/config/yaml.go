// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	applog "beatsketch/internal/log"
	"beatsketch/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`      // Enable debug logging.
	LogLevel   string           `yaml:"log_level"`  // Logging level ("debug", "info", "warn", "error").
	Analysis   AnalysisConfig   `yaml:"analysis"`   // Onset detection and feature extraction.
	Classifier ClassifierConfig `yaml:"classifier"` // Remote classification settings.
	Import     ImportConfig     `yaml:"import"`     // WAV upload and URL fetch limits.
	Server     ServerConfig     `yaml:"server"`     // HTTP API settings.
	Transport  TransportConfig  `yaml:"transport"`  // Progress event sinks.
}

// AnalysisConfig holds the onset detector and feature extractor settings.
type AnalysisConfig struct {
	FFTSize         int     `yaml:"fft_size"`          // Transform length, power of 2.
	FrameSize       int     `yaml:"frame_size"`        // Onset frame length in samples.
	HopSize         int     `yaml:"hop_size"`          // Samples between onset frames.
	Threshold       float64 `yaml:"threshold"`         // Normalized flux needed for an onset (0-1].
	MinPeakDistance float64 `yaml:"min_peak_distance"` // Minimum seconds between onsets.
	FeatureWindow   float64 `yaml:"feature_window"`    // Seconds analysed after each onset.
}

// ClassifierConfig holds the remote classifier settings. Without an API key
// the local heuristic classifies every onset.
type ClassifierConfig struct {
	Enabled          bool          `yaml:"enabled"`           // Use the remote classifier when a key is available.
	Endpoint         string        `yaml:"endpoint"`          // generateContent URL; empty for the default model.
	APIKey           string        `yaml:"api_key"`           // Inline API key (prefer api_key_file or ENV_GEMINI_API_KEY).
	APIKeyFile       string        `yaml:"api_key_file"`      // File holding the API key.
	Timeout          time.Duration `yaml:"timeout"`           // Per-request timeout.
	RateLimitDelay   time.Duration `yaml:"rate_limit_delay"`  // Pause between remote calls.
	BreakerThreshold int64         `yaml:"breaker_threshold"` // Consecutive failures that open the breaker.
	CacheTTL         time.Duration `yaml:"cache_ttl"`         // How long identical prompts reuse a label (0 disables).
}

// ImportConfig holds limits for audio input.
type ImportConfig struct {
	MaxBytes         int64         `yaml:"max_bytes"`          // Largest accepted WAV file.
	AllowedMIMETypes []string      `yaml:"allowed_mime_types"` // Declared content types accepted for uploads.
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`      // Timeout for URL downloads.
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Address           string  `yaml:"address"`             // Listen address.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // Analyze requests allowed per client per second.
	Burst             int     `yaml:"burst"`               // Requests allowed above the steady rate.
}

// TransportConfig holds settings related to sending progress events.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve progress events over a websocket (CLI runs).
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address for the CLI websocket.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send progress events as UDP packets.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: DefaultLogLevel,
		Analysis: AnalysisConfig{
			FFTSize:         DefaultFFTSize,
			FrameSize:       DefaultFrameSize,
			HopSize:         DefaultHopSize,
			Threshold:       DefaultThreshold,
			MinPeakDistance: DefaultMinPeakDistance,
			FeatureWindow:   DefaultFeatureWindow,
		},
		Classifier: ClassifierConfig{
			Enabled:          true,
			Timeout:          DefaultClassifyTimeout,
			RateLimitDelay:   DefaultRateLimitDelay,
			BreakerThreshold: DefaultBreakerThreshold,
			CacheTTL:         DefaultCacheTTL,
		},
		Import: ImportConfig{
			MaxBytes:         DefaultMaxBytes,
			AllowedMIMETypes: append([]string(nil), DefaultAllowedMIMETypes...),
			FetchTimeout:     DefaultFetchTimeout,
		},
		Server: ServerConfig{
			Address:           DefaultAddress,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it looks for DefaultConfigFile in the working directory. If no file is found, it uses
// built-in defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applog.Debugf("Config: Loaded %s", path)

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges that the analysis pipeline relies on.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	// Analysis Validation
	a := c.Analysis
	switch {
	case a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize:
		errs = append(errs, fmt.Errorf("analysis.fft_size must be between %d and %d, got %d",
			MinFFTSize, MaxFFTSize, a.FFTSize))
	case !bitint.IsPowerOfTwo(a.FFTSize):
		errs = append(errs, fmt.Errorf("analysis.fft_size must be a power of 2, got %d (next is %d)",
			a.FFTSize, bitint.NextPowerOfTwo(a.FFTSize)))
	}
	if a.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis.hop_size must be positive, got %d", a.HopSize))
	}
	if a.FrameSize < a.HopSize {
		errs = append(errs, fmt.Errorf("analysis.frame_size (%d) must be at least hop_size (%d)", a.FrameSize, a.HopSize))
	}
	if a.Threshold <= 0 || a.Threshold > 1 {
		errs = append(errs, fmt.Errorf("analysis.threshold must be in (0, 1], got %g", a.Threshold))
	}
	if a.MinPeakDistance < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_peak_distance must not be negative, got %g", a.MinPeakDistance))
	}
	if a.FeatureWindow <= 0 {
		errs = append(errs, fmt.Errorf("analysis.feature_window must be positive, got %g", a.FeatureWindow))
	}

	// Classifier Validation
	if c.Classifier.Timeout < 0 || c.Classifier.RateLimitDelay < 0 || c.Classifier.CacheTTL < 0 {
		errs = append(errs, errors.New("classifier durations must not be negative"))
	}
	if c.Classifier.BreakerThreshold <= 0 {
		errs = append(errs, fmt.Errorf("classifier.breaker_threshold must be positive, got %d", c.Classifier.BreakerThreshold))
	}

	// Import Validation
	if c.Import.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("import.max_bytes must be positive, got %d", c.Import.MaxBytes))
	}
	if len(c.Import.AllowedMIMETypes) == 0 {
		errs = append(errs, errors.New("import.allowed_mime_types must not be empty"))
	}
	for _, mt := range c.Import.AllowedMIMETypes {
		if !strings.HasPrefix(mt, "audio/") {
			errs = append(errs, fmt.Errorf("import.allowed_mime_types entry %q is not an audio type", mt))
		}
	}

	// Server Validation
	if c.Server.RequestsPerSecond <= 0 || c.Server.Burst <= 0 {
		errs = append(errs, errors.New("server.requests_per_second and server.burst must be positive"))
	}

	// Transport Validation
	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)",
			c.Transport.UDPTargetAddress))
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns the remote classifier key: ENV_GEMINI_API_KEY first,
// then classifier.api_key, then the trimmed contents of classifier.api_key_file.
// An empty key with a nil error means the heuristic classifies alone.
func (c *Config) ResolveAPIKey() (string, error) {
	if !c.Classifier.Enabled {
		return "", nil
	}
	if key := strings.TrimSpace(os.Getenv("ENV_GEMINI_API_KEY")); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(c.Classifier.APIKey); key != "" {
		return key, nil
	}
	if c.Classifier.APIKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Classifier.APIKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read classifier.api_key_file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// applyEnvOverrides replaces file values with ENV_* variables when they are
// set and parse.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Debugf("Config: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Debugf("Config: Overriding log_level from env: %s", val)
	}

	// ENV_CLASSIFIER_{...}
	// These are specific to the remote classifier.

	// ENV_CLASSIFIER_ENABLED
	if val, ok := os.LookupEnv("ENV_CLASSIFIER_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Classifier.Enabled = bVal
			applog.Debugf("Config: Overriding classifier.enabled from env: %v", bVal)
		}
	}
	// ENV_CLASSIFIER_RATE_LIMIT_DELAY
	if val, ok := os.LookupEnv("ENV_CLASSIFIER_RATE_LIMIT_DELAY"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Classifier.RateLimitDelay = dur
			applog.Debugf("Config: Overriding classifier.rate_limit_delay from env: %s", dur)
		}
	}

	// ENV_SERVER_{...}

	// ENV_SERVER_ADDRESS
	if val, ok := os.LookupEnv("ENV_SERVER_ADDRESS"); ok {
		cfg.Server.Address = val
		applog.Debugf("Config: Overriding server.address from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Debugf("Config: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Debugf("Config: Overriding transport.udp_target_address from env: %s", val)
	}
}
