package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/richxcame/traffic-advisor/pkg/security"
)

// Validate is the global validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())
	Validate.RegisterTagNameFunc(jsonFieldName)

	_ = Validate.RegisterValidation("place", validatePlace)
	_ = Validate.RegisterValidation("rfc3339", validateRFC3339)
}

// ValidationError collects per-field messages keyed by JSON field name.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+e.Errors[field])
	}
	return strings.Join(parts, "; ")
}

// AddError records a message for field, keeping the first one.
func (e *ValidationError) AddError(field, message string) {
	if e.Errors == nil {
		e.Errors = make(map[string]string)
	}
	if _, exists := e.Errors[field]; !exists {
		e.Errors[field] = message
	}
}

// NewValidationError converts validator errors into a ValidationError.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	result := &ValidationError{Errors: make(map[string]string, len(errs))}
	for _, fe := range errs {
		result.AddError(fe.Field(), messageFor(fe))
	}
	return result
}

// ValidateStruct validates a struct and returns a *ValidationError on failure.
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewValidationError(validationErrors)
	}
	return err
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "place":
		return "must be a plain place name"
	case "rfc3339":
		return "must be an RFC3339 timestamp"
	default:
		return "is invalid"
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// validatePlace accepts free text that names a place and carries no markup.
func validatePlace(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return security.HasPrintableContent(value) && !security.ContainsMarkup(value)
}

func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, fl.Field().String())
	return err == nil
}
