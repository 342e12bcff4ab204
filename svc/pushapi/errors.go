package pushapi

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("pushapi: unsupported media type")
	ErrInvalidBody          = errors.New("pushapi: invalid request body")
	ErrBodyTooLarge         = errors.New("pushapi: request body too large")
)
