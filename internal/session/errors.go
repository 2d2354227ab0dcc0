package session

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidJSON      = errors.New("invalid JSON message")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrNilSession       = errors.New("cannot register nil session")
)
