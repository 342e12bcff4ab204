package validator

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidURLWithScheme validates that a string is an absolute URL with one of the given schemes.
func ValidURLWithScheme(field, value string, schemes []string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}
			u, err := url.ParseRequestURI(value)
			if err != nil || u.Host == "" {
				return false
			}
			return slices.Contains(schemes, u.Scheme)
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be a valid URL with scheme: %s", strings.Join(schemes, ", ")),
			TranslationKey: "validation.url_scheme",
		},
	}
}

// Base64KeyLen validates that value decodes, in any of the base64 alphabets
// browsers emit, to exactly size bytes.
func Base64KeyLen(field, value string, size int) Rule {
	return Rule{
		Check: func() bool {
			b, err := DecodeBase64Key(value)
			return err == nil && len(b) == size
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be a base64 encoded %d byte key", size),
			TranslationKey: "validation.base64_key",
		},
	}
}

// DecodeBase64Key decodes a key encoded with URL-safe or standard base64, padded or not.
func DecodeBase64Key(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty key")
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		b, err := enc.DecodeString(value)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
