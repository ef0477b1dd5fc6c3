// SPDX-License-Identifier: MIT
package beat

import (
	"math"

	"github.com/google/uuid"
)

// DefaultVelocity is assigned to generated notes and to imported rows that
// omit a velocity.
const DefaultVelocity = 0.8

// Note is a single timestamped drum hit.
type Note struct {
	ID       string    `json:"id"`
	Time     float64   `json:"time"`     // Seconds from the start of the recording.
	Sound    SoundType `json:"sound"`    // Drum category.
	Velocity float64   `json:"velocity"` // 0.0-1.0.
}

// NewNote creates a note with a fresh id, its time rounded to 4 decimals and
// the default velocity.
func NewNote(time float64, sound SoundType) Note {
	return Note{
		ID:       uuid.NewString(),
		Time:     Round(time, 4),
		Sound:    sound,
		Velocity: DefaultVelocity,
	}
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
