package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/upb/zoneauth/models"
)

var validate = newValidator()

// newValidator registers the "role" tag, which accepts USER, ADMIN and
// SUPER_ADMIN in any case.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.NormalizeRole(fl.Field().String()).Valid()
	})
	return v
}

// ValidateStruct runs the validate tags on s. Tag failures come back as a
// *ValidationError; anything else (a non-struct argument) is returned as is.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return NewValidationError(fieldErrs)
	}
	return err
}

// ValidateEmail checks a single address with the same rules as the email tag.
func ValidateEmail(email string) error {
	err := validate.Var(email, "required,email")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string]string{"email": fieldMessage("email", fieldErrs[0])}}
	}
	return err
}

// ValidationError maps field names to human readable problems
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, len(names))
	for i, name := range names {
		msgs[i] = e.Fields[name]
	}
	return strings.Join(msgs, "; ")
}

func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe.Field(), fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email"
	case "role":
		return name + " must be one of USER, ADMIN, SUPER_ADMIN"
	case "url":
		return name + " must be an absolute URL"
	case "max":
		return fmt.Sprintf("%s is longer than %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", name, fe.Tag())
	}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields returns the field map of a *ValidationError in err's
// chain, or nil.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	return ve.Fields
}
