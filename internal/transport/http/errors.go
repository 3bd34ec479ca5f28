package http

import "errors"

var (
	errInvalidPayload = errors.New("invalid message payload")
	errUnsupported    = errors.New("unsupported message type")
)
