package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// MaxNameLength bounds node, recipe and item names.
	MaxNameLength = 128

	namePattern = regexp.MustCompile(`^[^\s].*$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) <= MaxNameLength && namePattern.MatchString(s)
	})
}

// Struct validates a value using its `validate` struct tags.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateName checks a user-facing identifier.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name exceeds maximum length of %d characters", MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name %q must not start with whitespace", name)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "gte", "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "required_if":
			return fmt.Errorf("%s: field is required when %s", field, param)
		case "unique":
			return fmt.Errorf("%s: duplicate %s", field, param)
		case "nefield":
			return fmt.Errorf("%s: must differ from %s", field, param)
		case "name":
			return fmt.Errorf("%s: invalid name %q", field, e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
