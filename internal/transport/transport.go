// Package transport delivers analysis progress events to outside listeners.
package transport

import "errors"

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every Send out to all of its transports.
type Multi []Transport

// Send delivers data to each transport and joins any errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins any errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
