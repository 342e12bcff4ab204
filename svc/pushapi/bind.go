package pushapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// maxBodySize bounds every request body. A registration is a few hundred
// bytes and a notification is capped by the push services at 4KB.
const maxBodySize = 64 << 10

func decodeJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: expected application/json", ErrUnsupportedMediaType)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, maxBodySize)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}

	if err := json.Unmarshal(body, v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("%w: malformed JSON at offset %d", ErrInvalidBody, syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("%w: field %q has wrong type", ErrInvalidBody, typeErr.Field)
		default:
			return fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
	}
	return nil
}
