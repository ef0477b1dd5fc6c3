// Package classify maps onset feature vectors to drum categories, either
// with a deterministic rule set or by asking a remote text-generation model.
package classify

import (
	"context"

	"beatsketch/internal/beat"
)

// Classifier labels one feature vector. Implementations may fail; callers
// fall back to Heuristic when they do.
type Classifier interface {
	Classify(ctx context.Context, f beat.Features) (beat.SoundType, error)
}

// Named is implemented by classifiers that report a short source label
// ("local", "remote", ...) for traces and metrics.
type Named interface {
	Name() string
}

// Lookuper is implemented by classifiers that can answer some inputs from
// memory. A hit costs no remote call.
type Lookuper interface {
	Lookup(f beat.Features) (beat.SoundType, bool)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, f beat.Features) (beat.SoundType, error)

// Classify calls fn(ctx, f).
func (fn Func) Classify(ctx context.Context, f beat.Features) (beat.SoundType, error) {
	return fn(ctx, f)
}

// Source labels used by NameOf.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// NameOf returns c's Name when it implements Named, otherwise SourceRemote,
// since anything injected in place of the heuristic is treated as remote.
func NameOf(c Classifier) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return SourceRemote
}

// FromCredential returns a Remote classifier for apiKey, or nil when apiKey
// is empty so that callers run on the heuristic alone.
func FromCredential(apiKey string, opts ...Option) Classifier {
	if apiKey == "" {
		return nil
	}
	return NewRemote(apiKey, opts...)
}
