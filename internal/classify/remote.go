package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"beatsketch/internal/beat"
	applog "beatsketch/internal/log"

	circuit "github.com/rubyist/circuitbreaker"
)

const (
	// DefaultEndpoint is the Gemini generateContent URL used by Remote.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent"
	// DefaultTimeout bounds one remote classification round trip.
	DefaultTimeout = 30 * time.Second
	// DefaultBreakerThreshold is the number of consecutive failures that
	// opens the breaker.
	DefaultBreakerThreshold = 5

	maxResponseBytes = 1 << 20
)

// ErrEmptyResponse is returned when the model replied without any text.
var ErrEmptyResponse = errors.New("classify: empty response from model")

// StatusError reports a non-2xx reply from the remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classify: remote returned %d: %s", e.StatusCode, e.Body)
}

// Remote asks a Gemini model to label each feature vector. Every call goes
// through a consecutive-failure circuit breaker; while it is open, calls
// fail immediately with circuit.ErrBreakerOpen.
type Remote struct {
	apiKey   string
	endpoint string
	client   *http.Client
	timeout  time.Duration
	breaker  *circuit.Breaker
}

var _ Classifier = (*Remote)(nil)

// Option configures a Remote.
type Option func(*Remote)

// WithEndpoint overrides the generateContent URL.
func WithEndpoint(url string) Option {
	return func(r *Remote) {
		if url != "" {
			r.endpoint = url
		}
	}
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Remote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout bounds each call. Zero disables the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Remote) { r.timeout = d }
}

// WithBreaker replaces the default breaker.
func WithBreaker(cb *circuit.Breaker) Option {
	return func(r *Remote) {
		if cb != nil {
			r.breaker = cb
		}
	}
}

// NewRemote creates a Remote classifier authenticated with apiKey.
func NewRemote(apiKey string, opts ...Option) *Remote {
	r := &Remote{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   http.DefaultClient,
		timeout:  DefaultTimeout,
		breaker:  circuit.NewConsecutiveBreaker(DefaultBreakerThreshold),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Name() string { return SourceRemote }

// Breaker exposes the circuit breaker, mainly for tests and status output.
func (r *Remote) Breaker() *circuit.Breaker {
	return r.breaker
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Classify sends the rendered prompt and parses the first line of the reply.
func (r *Remote) Classify(ctx context.Context, f beat.Features) (beat.SoundType, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(f)
	var text string
	// The deadline lives on ctx so the call runs synchronously in the breaker.
	err := r.breaker.CallContext(ctx, func() error {
		var err error
		text, err = r.generate(ctx, prompt)
		return err
	}, 0)
	if err != nil {
		return beat.Kick, err
	}

	sound, err := ParseResponse(text)
	if err != nil {
		return beat.Kick, err
	}
	applog.Debugf("Classify: remote replied %q -> %s", text, sound)
	return sound, nil
}

func (r *Remote) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("classify: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("classify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("classify: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("classify: decoding response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
