package classify

import (
	"fmt"
	"strings"

	"beatsketch/internal/beat"
)

const rubric = `You are a drum sound classifier. Analyze the following audio features and classify the sound into ONE of these categories:
- kick (bass drum): Low frequency dominant (20-150Hz), short duration (<0.15s)
- snare: Mid frequency (150-500Hz) with high noisiness (>0.3), short duration (<0.2s)
- hihat-closed: Very high frequency dominant (>5000Hz), very short duration (<0.1s)
- hihat-open: Very high frequency dominant (>5000Hz), medium duration (0.1-0.3s)
- clap: Mid-high frequency (1000-4000Hz), short duration (<0.15s), noisy
- tom: Mid-low frequency (100-400Hz), medium duration (0.1-0.25s)
- cymbal: High frequency (>3000Hz), long duration (>0.3s)
- rim: Mid-high frequency (2000-8000Hz), very short duration (<0.08s)
`

// BuildPrompt renders the classification request for f: the category rubric,
// the six band ratios (normalized by their sum) and the temporal features.
func BuildPrompt(f beat.Features) string {
	r, _ := f.Ratios()

	var b strings.Builder
	b.WriteString(rubric)
	b.WriteString("\nAudio Features:\n")
	fmt.Fprintf(&b, "- Low frequency ratio (20-150Hz): %.3f\n", r[0])
	fmt.Fprintf(&b, "- Mid-low frequency ratio (100-400Hz): %.3f\n", r[1])
	fmt.Fprintf(&b, "- Mid frequency ratio (300-1000Hz): %.3f\n", r[2])
	fmt.Fprintf(&b, "- Mid-high frequency ratio (800-3000Hz): %.3f\n", r[3])
	fmt.Fprintf(&b, "- High frequency ratio (2000-8000Hz): %.3f\n", r[4])
	fmt.Fprintf(&b, "- Very high frequency ratio (6000Hz+): %.3f\n", r[5])
	fmt.Fprintf(&b, "- Noisiness (0-1): %.3f\n", f.Noisiness)
	fmt.Fprintf(&b, "- Duration (seconds): %.3f\n", f.Duration)
	fmt.Fprintf(&b, "- Crest factor (peak / RMS): %.2f\n", f.CrestFactor)
	fmt.Fprintf(&b, "- Attack time (seconds to 80%% peak): %.3f\n", f.AttackTime)
	fmt.Fprintf(&b, "- Decay ratio (50ms post-peak / peak): %.3f\n", f.DecayRatio)
	b.WriteString("\nRespond with ONLY the category name (e.g., \"kick\", \"snare\", \"hihat-closed\", etc.). No explanation needed.")
	return b.String()
}

// ParseResponse resolves the first line of a model reply to a category.
// Text that names no category resolves to Kick. An empty reply is an error.
func ParseResponse(text string) (beat.SoundType, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.Trim(strings.TrimSpace(line), "\"'`.*")
	if line == "" {
		return beat.Kick, ErrEmptyResponse
	}
	s, _ := beat.MatchSound(line)
	return s, nil
}
