package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnavailable    = errors.New("backend unavailable")
	ErrMalformed      = errors.New("malformed payload")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrClosed         = errors.New("closed")
)
