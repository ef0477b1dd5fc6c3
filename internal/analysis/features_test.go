package analysis

import (
	"math"
	"testing"

	"beatsketch/internal/beat"
	"beatsketch/pkg/utils"
)

func constant(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestExtractFeaturesOutOfRange(t *testing.T) {
	tr := newTestTransform(t)
	samples := utils.GenerateSineWave(testSampleRate, testSampleRate, 440, 0.5)

	tests := []struct {
		name       string
		onset      float64
		sampleRate int
	}{
		{"At End", 1.0, testSampleRate},
		{"Past End", 3.0, testSampleRate},
		{"Negative", -0.1, testSampleRate},
		{"No Sample Rate", 0.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFeatures(samples, tt.sampleRate, tt.onset, DefaultFeatureWindow, tr)
			if got != (beat.Features{}) {
				t.Errorf("got %+v, want zero features", got)
			}
		})
	}
}

func TestExtractFeaturesSilence(t *testing.T) {
	tr := newTestTransform(t)
	got := ExtractFeatures(make([]float64, testSampleRate), testSampleRate, 0.2, DefaultFeatureWindow, tr)
	if got != (beat.Features{}) {
		t.Errorf("silence gave %+v, want zero features", got)
	}
}

func TestExtractFeaturesSine(t *testing.T) {
	tr := newTestTransform(t)
	samples := utils.GenerateSineWave(testSampleRate, testSampleRate, 440, 0.5)
	f := ExtractFeatures(samples, testSampleRate, 0, DefaultFeatureWindow, tr)

	if f.Mid != 1 {
		t.Errorf("Mid = %v, want 1 (bands %v)", f.Mid, f.Bands())
	}
	for i, e := range f.Bands() {
		if e < 0 || e > 1 || math.IsNaN(e) {
			t.Errorf("band %d energy = %v, want within [0,1]", i, e)
		}
	}
	if math.Abs(f.Noisiness-0.0195) > 0.001 {
		t.Errorf("Noisiness = %.4f, want ~0.0195", f.Noisiness)
	}
	if math.Abs(f.CrestFactor-math.Sqrt2) > 0.01 {
		t.Errorf("CrestFactor = %.4f, want ~%.4f", f.CrestFactor, math.Sqrt2)
	}
	if f.Duration <= 0.009 || f.Duration >= 0.013 {
		t.Errorf("Duration = %.4f, want just past the 10ms gap", f.Duration)
	}
	if f.AttackTime > 0.001 {
		t.Errorf("AttackTime = %.4f, want under 1ms", f.AttackTime)
	}
}

func TestExtractFeaturesBands(t *testing.T) {
	tr := newTestTransform(t)

	tests := []struct {
		name      string
		frequency float64
		loudest   func(beat.Features) float64
	}{
		{"60 Hz", 60, func(f beat.Features) float64 { return f.Low }},
		{"440 Hz", 440, func(f beat.Features) float64 { return f.Mid }},
		{"7 kHz", 7000, func(f beat.Features) float64 { return f.VeryHigh }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := utils.GenerateSineWave(testSampleRate/2, testSampleRate, tt.frequency, 0.5)
			f := ExtractFeatures(samples, testSampleRate, 0, DefaultFeatureWindow, tr)
			if got := tt.loudest(f); got != 1 {
				t.Errorf("loudest band = %v, want 1 (bands %v)", got, f.Bands())
			}
		})
	}
}

func TestExtractFeaturesShape(t *testing.T) {
	tr := newTestTransform(t)
	const sr = float64(testSampleRate)
	window := int(DefaultFeatureWindow * sr)

	t.Run("Impulse Crest", func(t *testing.T) {
		samples := make([]float64, testSampleRate)
		samples[0] = 1
		f := ExtractFeatures(samples, testSampleRate, 0, DefaultFeatureWindow, tr)
		if want := math.Sqrt(float64(window)); math.Abs(f.CrestFactor-want) > 1e-9 {
			t.Errorf("CrestFactor = %v, want %v", f.CrestFactor, want)
		}
		if f.AttackTime != 0 {
			t.Errorf("AttackTime = %v, want 0", f.AttackTime)
		}
	})

	t.Run("Ramp Attack", func(t *testing.T) {
		samples := make([]float64, testSampleRate)
		for i := range samples {
			samples[i] = min(float64(i)/100, 1)
		}
		f := ExtractFeatures(samples, testSampleRate, 0, DefaultFeatureWindow, tr)
		if want := 80 / sr; math.Abs(f.AttackTime-want) > 1e-12 {
			t.Errorf("AttackTime = %v, want %v", f.AttackTime, want)
		}
	})

	t.Run("Alternating Sign", func(t *testing.T) {
		samples := make([]float64, testSampleRate)
		for i := range samples {
			samples[i] = 1
			if i%2 == 1 {
				samples[i] = -1
			}
		}
		f := ExtractFeatures(samples, testSampleRate, 0, DefaultFeatureWindow, tr)
		if want := float64(window-1) / float64(window); math.Abs(f.Noisiness-want) > 1e-12 {
			t.Errorf("Noisiness = %v, want %v", f.Noisiness, want)
		}
	})

	t.Run("Decay", func(t *testing.T) {
		samples := make([]float64, testSampleRate/2)
		utils.Place(samples, utils.GenerateDecayingSine(int(0.3*sr), sr, 300, 0.9, 0.02), 0)
		f := ExtractFeatures(samples, testSampleRate, 0, 0.2, tr)
		// exp(-50ms / 20ms) ~ 0.082
		if f.DecayRatio < 0.04 || f.DecayRatio > 0.15 {
			t.Errorf("DecayRatio = %.4f, want ~0.08", f.DecayRatio)
		}
	})
}

func TestSoundingDuration(t *testing.T) {
	const sr = float64(testSampleRate)

	withBursts := func(n int, spans ...[2]int) []float64 {
		s := make([]float64, n)
		for _, span := range spans {
			for i := span[0]; i < span[1]; i++ {
				s[i] = 0.5
			}
		}
		return s
	}

	tests := []struct {
		name    string
		samples []float64
		start   int
		want    float64
	}{
		{"Short Burst", withBursts(testSampleRate, [2]int{0, 4410}), 0, 4409 / sr},
		{"Capped", constant(testSampleRate, 0.5), 0, 22049 / sr},
		{"Gap Inside Window", withBursts(testSampleRate, [2]int{0, 50}, [2]int{300, 1000}), 0, 999 / sr},
		{"Gap Past Window", withBursts(testSampleRate, [2]int{0, 50}, [2]int{500, 1000}), 0, 49 / sr},
		{"Offset Start", withBursts(testSampleRate, [2]int{1000, 1100}), 1000, 99 / sr},
		{"Quiet", constant(testSampleRate, 0.05), 0, 0},
		{"Truncated", constant(100, 0.5), 0, 99 / sr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := soundingDuration(tt.samples, tt.start, testSampleRate); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("soundingDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecayRatioBounds(t *testing.T) {
	tests := []struct {
		name string
		win  []float64
		peak int
		want float64
	}{
		{"Silent Sustain", make([]float64, 4000), 0, 0},
		{"Tail Past Window", constant(2205, 0.5), 0, 0},
		{"Flat", constant(4000, 0.5), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decayRatio(tt.win, tt.peak, testSampleRate); got != tt.want {
				t.Errorf("decayRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateRMS(t *testing.T) {
	tests := []struct {
		name string
		win  []float64
		want float64
	}{
		{"Empty", nil, 0},
		{"Constant", constant(64, -0.5), 0.5},
		{"Square", []float64{1, -1, 1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRMS(tt.win); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("calculateRMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkExtractFeatures(b *testing.B) {
	tr := newTestTransform(b)
	samples := drumPattern()

	for b.Loop() {
		ExtractFeatures(samples, testSampleRate, 0.2, DefaultFeatureWindow, tr)
	}
}
