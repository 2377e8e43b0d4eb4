// Package validation checks request input before it reaches a service.
// Constraints live in `validate` struct tags and are enforced by go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error reports the first violated constraint on a field
type Error struct {
	Field   string
	Rule    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, the names clients send
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct validates s against its `validate` tags and returns the first
// violation as an *Error
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate input: %w", err)
	}
	return fromFieldError(fieldErrs[0])
}

func fromFieldError(fe validator.FieldError) *Error {
	e := &Error{Field: fe.Field(), Rule: fe.Tag()}
	switch fe.Tag() {
	case "required":
		e.Message = "is required"
	case "min":
		e.Message = fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		e.Message = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		e.Message = "must be a valid email address"
	case "http_url":
		e.Message = "must be an absolute http(s) URL"
	case "oneof":
		e.Message = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		e.Message = "failed " + fe.Tag()
	}
	return e
}
