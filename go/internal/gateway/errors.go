package gateway

import "errors"

var (
	// ErrProtocolViolation marks a malformed or out-of-order inbound message.
	// The offending connection is closed, nothing else is affected.
	ErrProtocolViolation = errors.New("protocol violation")
	ErrSessionClosed     = errors.New("session closed")
	ErrSendBufferFull    = errors.New("send buffer full")
)
