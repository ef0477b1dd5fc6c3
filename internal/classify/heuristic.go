// SPDX-License-Identifier: MIT
package classify

import (
	"context"

	"beatsketch/internal/beat"
)

// Heuristic is the local rule-based classifier. It is pure and never fails.
type Heuristic struct{}

var _ Classifier = Heuristic{}

func (Heuristic) Name() string { return SourceLocal }

// Classify implements Classifier.
func (Heuristic) Classify(_ context.Context, f beat.Features) (beat.SoundType, error) {
	return Classify(f), nil
}

// Classify applies the ordered rule set to f; the first matching rule wins.
// Band energies are first normalized by their sum (Kick when the sum is 0).
// When no rule matches, the sound mapped to the largest band ratio is chosen,
// with ties going to the earlier band.
//
// The thresholds were tuned by ear against real recordings and are kept as is.
func Classify(f beat.Features) beat.SoundType {
	r, ok := f.Ratios()
	if !ok {
		return beat.Kick
	}
	low, midLow, mid, midHigh, high, veryHigh := r[0], r[1], r[2], r[3], r[4], r[5]
	d, crest, noise := f.Duration, f.CrestFactor, f.Noisiness
	attack, decay := f.AttackTime, f.DecayRatio

	switch {
	case low > 0.38 && crest > 4.5 && d < 0.18:
		return beat.Kick
	case mid > 0.28 && noise > 0.35 && d < 0.22 && crest < 9:
		return beat.Snare
	case midLow > 0.32 && d >= 0.12 && d < 0.28 && crest < 9:
		return beat.Tom
	case veryHigh > 0.45 && d < 0.09 && attack < 0.02:
		return beat.HihatClosed
	case veryHigh > 0.38 && d >= 0.09 && d < 0.28 && decay > 0.35:
		return beat.HihatOpen
	case high > 0.32 && d >= 0.25 && decay > 0.5:
		return beat.Cymbal
	case midHigh > 0.3 && d < 0.15 && noise > 0.3:
		return beat.Clap
	case midHigh > 0.25 && d < 0.08 && crest > 10 && attack < 0.02:
		return beat.Rim
	}

	// Band index -> fallback sound.
	fallback := [beat.BandCount]beat.SoundType{
		beat.Kick, beat.Tom, beat.Snare, beat.Rim, beat.Cymbal, beat.HihatOpen,
	}
	best := 0
	for i := 1; i < len(r); i++ {
		if r[i] > r[best] {
			best = i
		}
	}
	return fallback[best]
}
