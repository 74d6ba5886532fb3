// Package validate runs the client-side payload checks shared by the session
// manager and the collection controllers.
package validate

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shelfscan/shelfscan/internal/apierr"
)

var v = validator.New()

// Struct validates a payload against its `validate` tags. Failures come back
// as apierr.ValidationError with a message fit for inline display.
func Struct(payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apierr.NewValidation("%s", message(verrs[0]))
	}
	return apierr.NewValidation("invalid input")
}

func message(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "email":
		return field + " must be a valid email address"
	default:
		return field + " is invalid"
	}
}
