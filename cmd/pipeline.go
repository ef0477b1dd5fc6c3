package cmd

import (
	"fmt"

	"beatsketch/internal/analysis"
	"beatsketch/internal/classify"
	"beatsketch/internal/config"
	applog "beatsketch/internal/log"
	"beatsketch/internal/metrics"
	"beatsketch/internal/transport"
	"beatsketch/internal/transport/udp"

	circuit "github.com/rubyist/circuitbreaker"
)

// newClassifier returns the remote classifier the configuration asks for,
// or nil when the heuristic should classify alone.
func newClassifier(cfg *config.Config, noRemote bool) (classify.Classifier, error) {
	if noRemote {
		return nil, nil
	}
	key, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}
	if key == "" {
		applog.Debugf("Classifier: No API key, using the local heuristic")
		return nil, nil
	}

	c := cfg.Classifier
	opts := []classify.Option{
		classify.WithTimeout(c.Timeout),
		classify.WithBreaker(circuit.NewConsecutiveBreaker(c.BreakerThreshold)),
	}
	if c.Endpoint != "" {
		opts = append(opts, classify.WithEndpoint(c.Endpoint))
	}
	remote := classify.FromCredential(key, opts...)
	if c.CacheTTL > 0 {
		return classify.NewCached(remote, c.CacheTTL), nil
	}
	return remote, nil
}

// newTransport combines the configured progress sinks. extra sinks (a
// websocket hub, a TUI) are appended after the logging transport.
func newTransport(cfg *config.Config, extra ...transport.Transport) (transport.Transport, error) {
	sinks := transport.Multi{transport.NewLoggingTransport()}

	t := cfg.Transport
	if t.WebSocketEnabled {
		sinks = append(sinks, transport.NewWebSocketTransport(t.WebSocketAddress))
	}
	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("failed to create UDP sender: %w", err)
		}
		pub, err := udp.NewUDPPublisher(sender)
		if err != nil {
			sender.Close()
			sinks.Close()
			return nil, fmt.Errorf("failed to create UDP publisher: %w", err)
		}
		sinks = append(sinks, pub)
	}

	return append(sinks, extra...), nil
}

// newAnalyzer builds an Analyzer from the analysis and classifier settings.
func newAnalyzer(cfg *config.Config, c classify.Classifier, t transport.Transport, m *metrics.Metrics) (*analysis.Analyzer, error) {
	a := cfg.Analysis
	return analysis.NewAnalyzer(
		analysis.WithFFTSize(a.FFTSize),
		analysis.WithOnsetParams(analysis.OnsetParams{
			FrameSize:       a.FrameSize,
			HopSize:         a.HopSize,
			Threshold:       a.Threshold,
			MinPeakDistance: a.MinPeakDistance,
		}),
		analysis.WithFeatureWindow(a.FeatureWindow),
		analysis.WithClassifier(c),
		analysis.WithRateLimitDelay(cfg.Classifier.RateLimitDelay),
		analysis.WithTransport(t),
		analysis.WithMetrics(m),
	)
}
