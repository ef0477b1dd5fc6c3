package analysis

import (
	"beatsketch/internal/beat"
	"beatsketch/internal/classify"
)

// Trace records how one onset was handled.
type Trace struct {
	Index      int            `json:"index"`
	OnsetTime  float64        `json:"onsetTime"`
	Features   beat.Features  `json:"features"`
	Sound      beat.SoundType `json:"sound"`
	Source     string         `json:"source"` // "remote" or "local".
	FeatureMs  float64        `json:"featureMs"`
	ClassifyMs float64        `json:"classifyMs"`
	Err        string         `json:"error,omitempty"` // Remote failure that forced the local fallback.
}

// Processing holds timing statistics in milliseconds, rounded to 2 decimals.
type Processing struct {
	FeatureAvgMs    float64 `json:"featureAvgMs"`
	ClassifyAvgMs   float64 `json:"classifyAvgMs"`
	FeatureTotalMs  float64 `json:"featureTotalMs"`
	ClassifyTotalMs float64 `json:"classifyTotalMs"`
}

// Summary aggregates one analysis run.
type Summary struct {
	TotalBeats            int                    `json:"totalBeats"`
	ClassificationCounts  map[beat.SoundType]int `json:"classificationCounts"`
	FeatureAverages       beat.Features          `json:"featureAverages"`
	Processing            Processing             `json:"processing"`
	RemoteClassifications int                    `json:"remoteClassifications"`
	LocalClassifications  int                    `json:"localClassifications"`
}

// Result is the outcome of Analyze. On cancellation it holds everything
// finished before the run stopped.
type Result struct {
	Notes   []beat.Note `json:"notes"`
	Summary Summary     `json:"summary"`
	Trace   []Trace     `json:"trace,omitempty"`
}

// summarize builds the Summary from the per-onset traces. Feature averages
// are rounded to 3 decimals and timings to 2.
func summarize(traces []Trace) Summary {
	s := Summary{
		TotalBeats:           len(traces),
		ClassificationCounts: make(map[beat.SoundType]int, len(beat.Sounds)),
	}
	for _, sound := range beat.Sounds {
		s.ClassificationCounts[sound] = 0
	}
	if len(traces) == 0 {
		return s
	}

	var sums beat.Features
	var featureMs, classifyMs float64
	for _, tr := range traces {
		s.ClassificationCounts[tr.Sound]++
		if tr.Source == classify.SourceLocal {
			s.LocalClassifications++
		} else {
			s.RemoteClassifications++
		}
		sums = sums.Add(tr.Features)
		featureMs += tr.FeatureMs
		classifyMs += tr.ClassifyMs
	}

	n := float64(len(traces))
	s.FeatureAverages = sums.Scale(1/n, 3)
	s.Processing = Processing{
		FeatureAvgMs:    beat.Round(featureMs/n, 2),
		ClassifyAvgMs:   beat.Round(classifyMs/n, 2),
		FeatureTotalMs:  beat.Round(featureMs, 2),
		ClassifyTotalMs: beat.Round(classifyMs, 2),
	}
	return s
}

// Event is what the analyzer sends to its transport: one "onset" event per
// classified onset, then a final "summary" event.
type Event struct {
	Type    string   `json:"type"`
	RunID   string   `json:"runId"`
	Trace   *Trace   `json:"trace,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

const (
	EventOnset   = "onset"
	EventSummary = "summary"
)
