package protocol

import "github.com/pkg/errors"

var (
	// Channel errors

	ErrClosed = errors.New("protocol: channel is closed")

	// Frame errors

	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrInvalidFrame  = errors.New("protocol: invalid frame")

	// Envelope errors

	ErrUnknownSubject = errors.New("protocol: unknown subject")
)
