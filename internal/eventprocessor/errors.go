// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package eventprocessor

import (
	"errors"
	"fmt"
)

// ErrNilPublisher is returned when attempting to create a publisher with nil input.
var ErrNilPublisher = errors.New("publisher cannot be nil")

// ErrPublisherClosed is returned by publishes after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrStreamNotFound is returned when the NATS stream doesn't exist.
var ErrStreamNotFound = errors.New("stream not found")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrTransientStream marks a broker failure worth retrying: fetch timeouts,
// lost connections, failed publishes or acknowledgements.
var ErrTransientStream = errors.New("transient stream error")

// MalformedRecordError is returned when a record cannot be decoded or fails
// validation. The record is skipped, never retried.
type MalformedRecordError struct {
	Kind   string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s record: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s record: %s", e.Kind, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is, or wraps, a *MalformedRecordError.
func IsMalformed(err error) bool {
	var mre *MalformedRecordError
	return errors.As(err, &mre)
}

// transient wraps err with ErrTransientStream.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStream, err)
}
