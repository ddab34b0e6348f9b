package tcpserver

import "errors"

var (
	// ErrAlreadyRunning indicates Start was called on a running server.
	ErrAlreadyRunning = errors.New("tcpserver: already running")

	// ErrNotRunning indicates Stop was called on a stopped server.
	ErrNotRunning = errors.New("tcpserver: not running")
)
