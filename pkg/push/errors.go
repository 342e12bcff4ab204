package push

import (
	"errors"

	"github.com/dmitrymomot/pushkit/pkg/validator"
)

var (
	// ErrValidation marks input rejected before any side effect. The joined
	// validator.ValidationErrors carry the field details.
	ErrValidation = errors.New("push: validation failed")

	ErrUnknownChannel      = errors.New("push: unknown channel")
	ErrChannelUnconfigured = errors.New("push: channel unconfigured")
	ErrMalformedCredential = errors.New("push: malformed credential")
	ErrRegistryUnavailable = errors.New("push: registry unavailable")
	ErrInvalidConfig       = errors.New("push: invalid transport configuration")
)

// IsValidationError reports whether err was caused by invalid caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// FieldErrors returns the per-field validation failures carried by err, if any.
func FieldErrors(err error) validator.ValidationErrors {
	return validator.ExtractValidationErrors(err)
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrValidation, err)
}
