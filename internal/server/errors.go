package server

import "github.com/pkg/errors"

var (
	ErrServerClosed         = errors.New("server: closed for good")
	ErrServerNotRunning     = errors.New("server: not started")
	ErrServerAlreadyRunning = errors.New("server: already started")
	ErrListenerFailed       = errors.New("server: endpoint did not open")
)
