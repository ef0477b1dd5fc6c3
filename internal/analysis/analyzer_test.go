// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"beatsketch/internal/audio"
	"beatsketch/internal/beat"
	"beatsketch/internal/classify"
	"beatsketch/internal/metrics"
	"beatsketch/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var wantPattern = []beat.SoundType{beat.Kick, beat.HihatOpen, beat.Snare}

func patternBuffer() *audio.Buffer {
	return audio.NewMono(testSampleRate, drumPattern())
}

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// sleepRecorder records requested waits without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(opts...)
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	return a
}

func sounds(notes []beat.Note) []beat.SoundType {
	out := make([]beat.SoundType, len(notes))
	for i, n := range notes {
		out[i] = n.Sound
	}
	return out
}

func equalSounds(a, b []beat.SoundType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAnalyzeLocal(t *testing.T) {
	sleeper := &sleepRecorder{}
	a := newTestAnalyzer(t, WithSleep(sleeper.sleep))

	res, err := a.Analyze(context.Background(), patternBuffer())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got := sounds(res.Notes); !equalSounds(got, wantPattern) {
		t.Fatalf("sounds = %v, want %v", got, wantPattern)
	}

	ids := make(map[string]bool)
	for i, n := range res.Notes {
		if n.Velocity != beat.DefaultVelocity {
			t.Errorf("note %d velocity = %v, want %v", i, n.Velocity, beat.DefaultVelocity)
		}
		if n.Time != beat.Round(res.Trace[i].OnsetTime, 4) {
			t.Errorf("note %d time = %v, trace onset %v", i, n.Time, res.Trace[i].OnsetTime)
		}
		if i > 0 && n.Time <= res.Notes[i-1].Time {
			t.Errorf("note %d at %v is not after %v", i, n.Time, res.Notes[i-1].Time)
		}
		if n.ID == "" || ids[n.ID] {
			t.Errorf("note %d id %q is empty or repeated", i, n.ID)
		}
		ids[n.ID] = true
	}

	s := res.Summary
	if s.TotalBeats != 3 || s.LocalClassifications != 3 || s.RemoteClassifications != 0 {
		t.Errorf("summary counts = %d total, %d local, %d remote", s.TotalBeats, s.LocalClassifications, s.RemoteClassifications)
	}
	if len(s.ClassificationCounts) != len(beat.Sounds) {
		t.Errorf("ClassificationCounts has %d keys, want %d", len(s.ClassificationCounts), len(beat.Sounds))
	}
	var total int
	for _, c := range s.ClassificationCounts {
		total += c
	}
	if total != s.TotalBeats {
		t.Errorf("classification counts sum to %d, want %d", total, s.TotalBeats)
	}
	for _, tr := range res.Trace {
		if tr.Source != classify.SourceLocal || tr.Err != "" {
			t.Errorf("trace %d source %q err %q, want local without error", tr.Index, tr.Source, tr.Err)
		}
	}

	if calls := sleeper.calls(); len(calls) != 0 {
		t.Errorf("heuristic-only run waited %v", calls)
	}
}

func TestAnalyzeRejects(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := newTestAnalyzer(t, WithMetrics(m))

	tests := []struct {
		name string
		buf  *audio.Buffer
		want error
	}{
		{"Nil Buffer", nil, ErrInvalidBuffer},
		{"No Channels", &audio.Buffer{SampleRate: testSampleRate}, ErrInvalidBuffer},
		{"Empty Channel", audio.NewMono(testSampleRate, nil), ErrInvalidBuffer},
		{"No Sample Rate", audio.NewMono(0, drumPattern()), ErrInvalidBuffer},
		{"Silence", audio.NewMono(testSampleRate, make([]float64, testSampleRate)), ErrNoBeats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Analyze(context.Background(), tt.buf)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Errorf("Analyze() returned %d notes on error", len(res.Notes))
			}
		})
	}

	if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("invalid_buffer")); got != 4 {
		t.Errorf("invalid_buffer errors = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("no_beats")); got != 1 {
		t.Errorf("no_beats errors = %v, want 1", got)
	}
}

func TestAnalyzeRemote(t *testing.T) {
	sleeper := &sleepRecorder{}
	var mu sync.Mutex
	calls := 0
	remote := classify.Func(func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return beat.Tom, nil
	})

	a := newTestAnalyzer(t, WithClassifier(remote), WithSleep(sleeper.sleep))
	res, err := a.Analyze(context.Background(), patternBuffer())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	for i, n := range res.Notes {
		if n.Sound != beat.Tom || res.Trace[i].Source != classify.SourceRemote {
			t.Errorf("note %d = %v from %q, want tom from remote", i, n.Sound, res.Trace[i].Source)
		}
	}
	if calls != 3 {
		t.Errorf("remote called %d times, want 3", calls)
	}
	if res.Summary.RemoteClassifications != 3 || res.Summary.ClassificationCounts[beat.Tom] != 3 {
		t.Errorf("summary = %+v", res.Summary)
	}

	waits := sleeper.calls()
	if len(waits) != 2 {
		t.Fatalf("waited %d times, want 2 (between onsets only)", len(waits))
	}
	for _, d := range waits {
		if d != DefaultRateLimitDelay {
			t.Errorf("wait = %v, want %v", d, DefaultRateLimitDelay)
		}
	}
}

// memoClassifier answers the lookups listed in hits from memory and counts
// the calls that reach it.
type memoClassifier struct {
	mu      sync.Mutex
	lookups int
	hits    map[int]bool
	calls   int
}

func (m *memoClassifier) Lookup(f beat.Features) (beat.SoundType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return beat.Cymbal, m.hits[m.lookups]
}

func (m *memoClassifier) Classify(ctx context.Context, f beat.Features) (beat.SoundType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return beat.Tom, nil
}

func TestAnalyzeCachePacing(t *testing.T) {
	t.Run("Repeated Run", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		var calls int
		inner := classify.Func(func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
			calls++
			return beat.Rim, nil
		})
		a := newTestAnalyzer(t,
			WithClassifier(classify.NewCached(inner, time.Minute)),
			WithSleep(sleeper.sleep),
		)

		if _, err := a.Analyze(context.Background(), patternBuffer()); err != nil {
			t.Fatalf("first Analyze() error = %v", err)
		}
		if n := len(sleeper.calls()); n != 2 || calls != 3 {
			t.Fatalf("first run: %d waits, %d calls; want 2 and 3", n, calls)
		}

		res, err := a.Analyze(context.Background(), patternBuffer())
		if err != nil {
			t.Fatalf("second Analyze() error = %v", err)
		}
		if n := len(sleeper.calls()); n != 2 {
			t.Errorf("second run waited %d more times, want 0", n-2)
		}
		if calls != 3 {
			t.Errorf("inner calls = %d, want 3", calls)
		}
		for i, tr := range res.Trace {
			if tr.Sound != beat.Rim || tr.Source != classify.SourceRemote {
				t.Errorf("trace %d = %v from %q, want rim from remote", i, tr.Sound, tr.Source)
			}
		}
	})

	t.Run("Hit Between Calls", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		memo := &memoClassifier{hits: map[int]bool{2: true}}
		a := newTestAnalyzer(t, WithClassifier(memo), WithSleep(sleeper.sleep))

		res, err := a.Analyze(context.Background(), patternBuffer())
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		want := []beat.SoundType{beat.Tom, beat.Cymbal, beat.Tom}
		if got := sounds(res.Notes); !equalSounds(got, want) {
			t.Errorf("sounds = %v, want %v", got, want)
		}
		if memo.calls != 2 {
			t.Errorf("remote calls = %d, want 2", memo.calls)
		}
		waits := sleeper.calls()
		if len(waits) != 1 || waits[0] != DefaultRateLimitDelay {
			t.Errorf("waits = %v, want one %v before the second call", waits, DefaultRateLimitDelay)
		}
	})
}

func TestAnalyzeWaitHonorsContext(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	// The first run holds the Analyzer in its rate-limit wait.
	sleep := func(ctx context.Context, d time.Duration) error {
		once.Do(func() { close(entered) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	remote := classify.Func(func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
		return beat.Rim, nil
	})
	m := metrics.New(nil)
	a := newTestAnalyzer(t, WithClassifier(remote), WithSleep(sleep), WithMetrics(m))

	done := make(chan error, 1)
	go func() {
		_, err := a.Analyze(context.Background(), patternBuffer())
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := a.Analyze(ctx, patternBuffer())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting Analyze() error = %v, want context.DeadlineExceeded", err)
	}
	if res != nil {
		t.Errorf("waiting Analyze() result = %+v, want nil", res)
	}
	if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("cancelled errors = %v, want 1", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Analyze() error = %v", err)
	}
}

func TestAnalyzeRemoteFallback(t *testing.T) {
	tests := []struct {
		name   string
		remote classify.Func
	}{
		{"Error", func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
			return 0, errors.New("quota exceeded")
		}},
		{"Unknown Sound", func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
			return beat.SoundType(42), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(nil)
			a := newTestAnalyzer(t,
				WithClassifier(tt.remote),
				WithRateLimitDelay(0),
				WithMetrics(m),
			)

			res, err := a.Analyze(context.Background(), patternBuffer())
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if got := sounds(res.Notes); !equalSounds(got, wantPattern) {
				t.Errorf("sounds = %v, want heuristic %v", got, wantPattern)
			}
			for _, tr := range res.Trace {
				if tr.Source != classify.SourceLocal || tr.Err == "" {
					t.Errorf("trace %d source %q err %q, want local with error", tr.Index, tr.Source, tr.Err)
				}
			}
			if res.Summary.LocalClassifications != 3 {
				t.Errorf("local = %d, want 3", res.Summary.LocalClassifications)
			}
			if got := testutil.ToFloat64(m.RemoteFailures); got != 3 {
				t.Errorf("remote failures = %v, want 3", got)
			}
		})
	}
}

func TestAnalyzeCancel(t *testing.T) {
	t.Run("Mid Run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		remote := classify.Func(func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
			return beat.Clap, nil
		})
		// Cancel during the first rate-limit wait.
		sleep := func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}

		m := metrics.New(nil)
		a := newTestAnalyzer(t, WithClassifier(remote), WithSleep(sleep), WithMetrics(m))
		res, err := a.Analyze(ctx, patternBuffer())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Analyze() error = %v, want context.Canceled", err)
		}
		if res == nil || len(res.Notes) != 1 || res.Summary.TotalBeats != 1 {
			t.Fatalf("want one finished note, got %+v", res)
		}
		if res.Notes[0].Sound != beat.Clap {
			t.Errorf("sound = %v, want clap", res.Notes[0].Sound)
		}
		if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("cancelled")); got != 1 {
			t.Errorf("cancelled errors = %v, want 1", got)
		}
	})

	t.Run("Before Start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		a := newTestAnalyzer(t)
		res, err := a.Analyze(ctx, patternBuffer())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Analyze() error = %v, want context.Canceled", err)
		}
		if res == nil || len(res.Notes) != 0 || res.Summary.TotalBeats != 0 {
			t.Errorf("want an empty partial result, got %+v", res)
		}
	})
}

func TestAnalyzeRateLimitDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-time wait in short mode")
	}

	remote := classify.Func(func(ctx context.Context, f beat.Features) (beat.SoundType, error) {
		return beat.Rim, nil
	})
	a := newTestAnalyzer(t, WithClassifier(remote), WithRateLimitDelay(30*time.Millisecond))

	start := time.Now()
	if _, err := a.Analyze(context.Background(), patternBuffer()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("elapsed %v, want at least two 30ms waits", elapsed)
	}
}

func TestAnalyzeEvents(t *testing.T) {
	mock := &utils.MockTransport{}
	a := newTestAnalyzer(t, WithTransport(mock))

	res, err := a.Analyze(context.Background(), patternBuffer())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 4 {
		t.Fatalf("sent %d events, want 3 onsets and a summary", len(msgs))
	}
	var runID string
	for i, msg := range msgs {
		ev, ok := msg.(Event)
		if !ok {
			t.Fatalf("event %d has type %T", i, msg)
		}
		if runID == "" {
			runID = ev.RunID
		}
		if ev.RunID == "" || ev.RunID != runID {
			t.Errorf("event %d run id %q, want %q", i, ev.RunID, runID)
		}
		if i < 3 {
			if ev.Type != EventOnset || ev.Trace == nil || ev.Trace.Sound != res.Notes[i].Sound {
				t.Errorf("event %d = %+v, want onset for note %d", i, ev, i)
			}
			continue
		}
		if ev.Type != EventSummary || ev.Summary == nil || ev.Summary.TotalBeats != 3 {
			t.Errorf("last event = %+v, want summary", ev)
		}
	}

	t.Run("Send Failure", func(t *testing.T) {
		broken := &utils.MockTransport{SendErr: errors.New("connection reset")}
		a := newTestAnalyzer(t, WithTransport(broken))
		res, err := a.Analyze(context.Background(), patternBuffer())
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(res.Notes) != 3 {
			t.Errorf("got %d notes, want 3", len(res.Notes))
		}
	})
}

func TestAnalyzeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := newTestAnalyzer(t, WithMetrics(m))

	if _, err := a.Analyze(context.Background(), patternBuffer()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got := testutil.ToFloat64(m.OnsetsDetected); got != 3 {
		t.Errorf("onsets = %v, want 3", got)
	}
	for _, sound := range wantPattern {
		if got := testutil.ToFloat64(m.Classifications.WithLabelValues(sound.String(), classify.SourceLocal)); got != 1 {
			t.Errorf("%v/local = %v, want 1", sound, got)
		}
	}
	if n := testutil.CollectAndCount(m.AnalysisTime); n != 1 {
		t.Errorf("analysis histogram series = %d, want 1", n)
	}
}

func TestAnalyzeDeterministicSummary(t *testing.T) {
	run := func() Summary {
		a := newTestAnalyzer(t, WithClock(fakeClock(time.Millisecond)))
		res, err := a.Analyze(context.Background(), patternBuffer())
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		return res.Summary
	}

	first, second := run(), run()
	want := Processing{FeatureAvgMs: 1, ClassifyAvgMs: 1, FeatureTotalMs: 3, ClassifyTotalMs: 3}
	if first.Processing != want {
		t.Errorf("Processing = %+v, want %+v", first.Processing, want)
	}
	if first.FeatureAverages != second.FeatureAverages || first.Processing != second.Processing {
		t.Errorf("summaries differ:\n%+v\n%+v", first, second)
	}
	if r := first.FeatureAverages.Low; r != beat.Round(r, 3) {
		t.Errorf("feature average %v is not rounded to 3 decimals", r)
	}
}

func TestNewAnalyzerOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"Zero Hop", WithOnsetParams(OnsetParams{FrameSize: 2048, Threshold: 0.3})},
		{"Zero Frame", WithOnsetParams(OnsetParams{HopSize: 512, Threshold: 0.3})},
		{"Bad FFT Size", WithFFTSize(1000)},
		{"Zero Window", WithFeatureWindow(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyzer(tt.opt); err == nil {
				t.Error("NewAnalyzer() should fail")
			}
		})
	}

	if _, err := NewAnalyzer(WithFFTSize(2048), WithFeatureWindow(0.1)); err != nil {
		t.Errorf("NewAnalyzer() error = %v", err)
	}
}

func TestAnalyzeConcurrent(t *testing.T) {
	a := newTestAnalyzer(t)
	buf := patternBuffer()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := a.Analyze(context.Background(), buf)
			if err == nil && !equalSounds(sounds(res.Notes), wantPattern) {
				err = errors.New("unexpected sounds")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Analyze() error = %v", err)
		}
	}
}

func TestAnalyzeExportRoundTrip(t *testing.T) {
	a := newTestAnalyzer(t)
	res, err := a.Analyze(context.Background(), patternBuffer())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	data, err := beat.ExportJSON(res.Notes)
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	fromJSON, err := beat.ImportJSON(data)
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	fromCSV, err := beat.ImportCSV(beat.ExportCSV(res.Notes))
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}

	for name, got := range map[string][]beat.Note{"json": fromJSON, "csv": fromCSV} {
		if len(got) != len(res.Notes) {
			t.Fatalf("%s: %d notes, want %d", name, len(got), len(res.Notes))
		}
		for i := range got {
			w := res.Notes[i]
			if got[i].Time != w.Time || got[i].Sound != w.Sound || got[i].Velocity != w.Velocity {
				t.Errorf("%s note %d = %+v, want %+v", name, i, got[i], w)
			}
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	a, err := NewAnalyzer()
	if err != nil {
		b.Fatal(err)
	}
	buf := patternBuffer()
	ctx := context.Background()

	for b.Loop() {
		if _, err := a.Analyze(ctx, buf); err != nil {
			b.Fatal(err)
		}
	}
}
