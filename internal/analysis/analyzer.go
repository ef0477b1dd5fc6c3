// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"beatsketch/internal/audio"
	"beatsketch/internal/beat"
	"beatsketch/internal/classify"
	"beatsketch/internal/fft"
	applog "beatsketch/internal/log"
	"beatsketch/internal/metrics"
	"beatsketch/internal/transport"

	"github.com/google/uuid"
)

var (
	// ErrNoBeats is returned when a valid buffer contains no onsets.
	ErrNoBeats = errors.New("no beats detected")
	// ErrInvalidBuffer is returned for nil or empty buffers and buffers
	// without a positive sample rate.
	ErrInvalidBuffer = errors.New("invalid audio buffer")
)

// DefaultRateLimitDelay separates consecutive remote classification calls.
const DefaultRateLimitDelay = 4 * time.Second

// Analyzer turns a decoded recording into drum notes: onset detection,
// feature extraction and classification, one onset at a time.
//
// Calls to Analyze on the same Analyzer are serialized. A call waiting for
// another run to finish gives up when its context is done.
type Analyzer struct {
	sem       chan struct{}
	transform *fft.Transform

	fftSize     int
	onsetParams OnsetParams
	window      float64
	remote      classify.Classifier
	delay       time.Duration
	transport   transport.Transport
	metrics     *metrics.Metrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOnsetParams overrides the onset detector settings.
func WithOnsetParams(p OnsetParams) Option {
	return func(a *Analyzer) { a.onsetParams = p }
}

// WithFFTSize sets the transform length (a power of 2).
func WithFFTSize(n int) Option {
	return func(a *Analyzer) { a.fftSize = n }
}

// WithFeatureWindow sets the seconds of audio examined after each onset.
func WithFeatureWindow(seconds float64) Option {
	return func(a *Analyzer) { a.window = seconds }
}

// WithClassifier injects the preferred classifier, normally a remote one.
// Its failures fall back to the local heuristic. A nil classifier means the
// heuristic alone.
func WithClassifier(c classify.Classifier) Option {
	return func(a *Analyzer) { a.remote = c }
}

// WithRateLimitDelay sets the pause between consecutive calls to the
// injected classifier. Answers a Lookuper classifier gives from memory are
// not calls and are not delayed.
func WithRateLimitDelay(d time.Duration) Option {
	return func(a *Analyzer) { a.delay = d }
}

// WithTransport sets where per-onset and summary events are sent.
func WithTransport(t transport.Transport) Option {
	return func(a *Analyzer) { a.transport = t }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock replaces time.Now for the timing statistics.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithSleep replaces the rate-limit wait. The function must return early
// with ctx.Err() when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Analyzer) { a.sleep = sleep }
}

// NewAnalyzer creates an Analyzer with the given options applied over the
// defaults.
func NewAnalyzer(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		sem:         make(chan struct{}, 1),
		fftSize:     fft.DefaultSize,
		onsetParams: DefaultOnsetParams(),
		window:      DefaultFeatureWindow,
		delay:       DefaultRateLimitDelay,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.onsetParams.FrameSize <= 0 || a.onsetParams.HopSize <= 0 {
		return nil, fmt.Errorf("analysis: frame size and hop size must be positive (got %d, %d)",
			a.onsetParams.FrameSize, a.onsetParams.HopSize)
	}
	if a.window <= 0 {
		return nil, fmt.Errorf("analysis: feature window must be positive, got %g", a.window)
	}
	t, err := fft.NewTransform(a.fftSize)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	a.transform = t

	applog.Debugf("Analysis: Analyzer ready (FFT %d, frame %d, hop %d, threshold %.2f, remote %t)",
		a.fftSize, a.onsetParams.FrameSize, a.onsetParams.HopSize, a.onsetParams.Threshold, a.remote != nil)
	return a, nil
}

// Analyze detects and classifies every onset in channel 0 of buf.
//
// It fails with ErrInvalidBuffer for unusable input and ErrNoBeats when no
// onset is found; no notes are returned in either case. Remote
// classification failures never fail the run. When ctx is cancelled between
// onsets, Analyze returns the notes finished so far together with ctx.Err().
// When ctx is done while Analyze waits for another run on the same Analyzer,
// it returns a nil result and ctx.Err().
func (a *Analyzer) Analyze(ctx context.Context, buf *audio.Buffer) (*Result, error) {
	samples := buf.Channel(0)
	if buf == nil || buf.SampleRate <= 0 || len(samples) == 0 {
		a.metrics.ObserveError("invalid_buffer")
		return nil, ErrInvalidBuffer
	}

	if err := a.acquire(ctx); err != nil {
		a.metrics.ObserveError("cancelled")
		return nil, err
	}
	defer func() { <-a.sem }()

	start := a.now()
	runID := uuid.NewString()
	applog.Infof("Analysis: Run %s started (%.2fs at %d Hz)", runID, buf.Duration(), buf.SampleRate)

	onsets := DetectOnsets(samples, buf.SampleRate, a.onsetParams, a.transform)
	a.metrics.ObserveOnsets(len(onsets))
	if len(onsets) == 0 {
		a.metrics.ObserveError("no_beats")
		applog.Infof("Analysis: Run %s found no onsets", runID)
		return nil, ErrNoBeats
	}
	applog.Debugf("Analysis: Run %s detected %d onsets", runID, len(onsets))

	res := &Result{
		Notes: make([]beat.Note, 0, len(onsets)),
		Trace: make([]Trace, 0, len(onsets)),
	}

	// called is set once the remote classifier has been called in this run.
	called := false
	for i, onset := range onsets {
		if err := ctx.Err(); err != nil {
			return a.finish(runID, res, start, err)
		}

		t0 := a.now()
		f := ExtractFeatures(samples, buf.SampleRate, onset, a.window, a.transform)
		t1 := a.now()
		c0 := t1

		var (
			sound  beat.SoundType
			source string
			cerr   error
		)
		if s, ok := a.lookup(f); ok {
			sound, source = s, classify.NameOf(a.remote)
		} else {
			if a.remote != nil {
				if called {
					if err := a.sleep(ctx, a.delay); err != nil {
						return a.finish(runID, res, start, err)
					}
					c0 = a.now()
				}
				called = true
			}
			sound, source, cerr = a.classify(ctx, f)
		}
		t2 := a.now()

		tr := Trace{
			Index:      i,
			OnsetTime:  onset,
			Features:   f,
			Sound:      sound,
			Source:     source,
			FeatureMs:  milliseconds(t1.Sub(t0)),
			ClassifyMs: milliseconds(t2.Sub(c0)),
		}
		if cerr != nil {
			tr.Err = cerr.Error()
		}
		res.Notes = append(res.Notes, beat.NewNote(onset, sound))
		res.Trace = append(res.Trace, tr)
		a.metrics.ObserveClassification(sound.String(), source)
		a.send(Event{Type: EventOnset, RunID: runID, Trace: &tr})
	}

	return a.finish(runID, res, start, nil)
}

// acquire takes the run slot, waiting for a running analysis until ctx is
// done. A free slot is always taken, even with ctx already done.
func (a *Analyzer) acquire(ctx context.Context) error {
	select {
	case a.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish attaches the summary, publishes it and records the run time.
func (a *Analyzer) finish(runID string, res *Result, start time.Time, err error) (*Result, error) {
	res.Summary = summarize(res.Trace)
	a.send(Event{Type: EventSummary, RunID: runID, Summary: &res.Summary})
	a.metrics.ObserveAnalysis(a.now().Sub(start))

	if err != nil {
		a.metrics.ObserveError("cancelled")
		applog.Warnf("Analysis: Run %s stopped after %d of its onsets: %v", runID, len(res.Notes), err)
		return res, err
	}
	applog.Infof("Analysis: Run %s finished with %d notes (%d remote, %d local)",
		runID, res.Summary.TotalBeats, res.Summary.RemoteClassifications, res.Summary.LocalClassifications)
	return res, nil
}

// classify asks the injected classifier first and falls back to the
// heuristic on any failure. The returned error is the absorbed remote
// failure, for the trace only.
func (a *Analyzer) classify(ctx context.Context, f beat.Features) (beat.SoundType, string, error) {
	if a.remote == nil {
		return classify.Classify(f), classify.SourceLocal, nil
	}

	sound, err := a.remote.Classify(ctx, f)
	if err == nil && !sound.Valid() {
		err = fmt.Errorf("classifier returned unknown sound %d", uint8(sound))
	}
	if err == nil {
		return sound, classify.NameOf(a.remote), nil
	}

	a.metrics.ObserveRemoteFailure()
	applog.Warnf("Analysis: Remote classification failed, using heuristic: %v", err)
	return classify.Classify(f), classify.SourceLocal, err
}

// lookup answers f from the remote classifier's memory when it has one.
func (a *Analyzer) lookup(f beat.Features) (beat.SoundType, bool) {
	l, ok := a.remote.(classify.Lookuper)
	if !ok {
		return 0, false
	}
	s, ok := l.Lookup(f)
	return s, ok && s.Valid()
}

func (a *Analyzer) send(ev Event) {
	if a.transport == nil {
		return
	}
	if err := a.transport.Send(ev); err != nil {
		applog.Warnf("Analysis: Error sending %s event: %v", ev.Type, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
