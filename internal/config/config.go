package config

import "time"

// Defaults and limits for the analysis pipeline and its surfaces.
const (
	// Analysis defaults
	DefaultFFTSize         = 1024  // Spectrum resolution (power of 2)
	DefaultFrameSize       = 2048  // Onset detector frame, samples
	DefaultHopSize         = 512   // Onset detector hop, samples
	DefaultThreshold       = 0.3   // Normalized flux threshold
	DefaultMinPeakDistance = 0.05  // Seconds between onsets
	DefaultFeatureWindow   = 0.05  // Seconds analysed after each onset
	DefaultLogLevel        = "info"

	// Classifier defaults
	DefaultClassifyTimeout  = 30 * time.Second
	DefaultRateLimitDelay   = 4 * time.Second // Gemini free tier
	DefaultBreakerThreshold = 5
	DefaultCacheTTL         = 10 * time.Minute

	// Import defaults
	DefaultMaxBytes     = 5 << 20 // 5 MiB
	DefaultFetchTimeout = 30 * time.Second

	// Server defaults
	DefaultAddress           = "127.0.0.1:8080"
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 3

	// Transport defaults
	DefaultWebSocketAddress = "127.0.0.1:8081"
	DefaultUDPTargetAddress = "127.0.0.1:9090"

	// Limits
	MinFFTSize = 64
	MaxFFTSize = 16384
)

// DefaultAllowedMIMETypes are the declared content types accepted for WAV
// uploads.
var DefaultAllowedMIMETypes = []string{"audio/wav", "audio/x-wav", "audio/wave"}

// DefaultConfigFile is looked up in the working directory when no path is
// given to LoadConfig.
const DefaultConfigFile = "beatsketch.yaml"
