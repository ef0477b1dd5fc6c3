// SPDX-License-Identifier: MIT
package beat

import (
	"fmt"
	"strings"
)

// SoundType is one of the eight drum categories a note can carry.
// The zero value is Kick, which is also the fallback for anything that
// cannot be resolved to a known category.
type SoundType uint8

const (
	Kick SoundType = iota
	Snare
	HihatClosed
	HihatOpen
	Clap
	Tom
	Cymbal
	Rim
)

// Sounds lists every category in canonical order.
var Sounds = [...]SoundType{Kick, Snare, HihatClosed, HihatOpen, Clap, Tom, Cymbal, Rim}

var soundNames = [...]string{
	Kick:        "kick",
	Snare:       "snare",
	HihatClosed: "hihat-closed",
	HihatOpen:   "hihat-open",
	Clap:        "clap",
	Tom:         "tom",
	Cymbal:      "cymbal",
	Rim:         "rim",
}

func (s SoundType) String() string {
	if int(s) < len(soundNames) {
		return soundNames[s]
	}
	return fmt.Sprintf("SoundType(%d)", uint8(s))
}

// Valid reports whether s is one of the eight known categories.
func (s SoundType) Valid() bool {
	return int(s) < len(soundNames)
}

// ParseSound strictly parses a category name (case-insensitive).
func ParseSound(name string) (SoundType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range Sounds {
		if soundNames[s] == n {
			return s, nil
		}
	}
	return Kick, fmt.Errorf("unknown sound %q", name)
}

// MatchSound resolves free text to a category: an exact (case-insensitive)
// match wins, otherwise the first category whose name appears in the text.
// When nothing matches it returns Kick and false.
func MatchSound(text string) (SoundType, bool) {
	n := strings.ToLower(strings.TrimSpace(text))
	for _, s := range Sounds {
		if soundNames[s] == n {
			return s, true
		}
	}
	for _, s := range Sounds {
		if strings.Contains(n, soundNames[s]) {
			return s, true
		}
	}
	return Kick, false
}

func (s SoundType) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sound %d", uint8(s))
	}
	return []byte(soundNames[s]), nil
}

func (s *SoundType) UnmarshalText(b []byte) error {
	v, err := ParseSound(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
