// Package validation wraps go-playground/validator for request DTOs and
// plugs into echo as its Validator.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so messages match what the caller sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Custom validators
	v.RegisterValidation("ehr_system", validateEHRSystem)
	v.RegisterValidation("base_url", validateBaseURL)

	return &Validator{validate: v}
}

// Validate satisfies echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &Error{Fields: msgs}
}

// Error lists every failed field.
type Error struct {
	Fields []string
}

func (e *Error) Error() string {
	return "invalid request: " + strings.Join(e.Fields, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "ehr_system":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), ehrSystemNames)
	case "base_url":
		return fmt.Sprintf("%s must be an absolute http(s) URL", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}

var ehrSystemNames = func() string {
	names := make([]string, len(fhirmodels.AllEHRSystems))
	for i, s := range fhirmodels.AllEHRSystems {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}()

func validateEHRSystem(fl validator.FieldLevel) bool {
	_, err := fhirmodels.ParseEHRSystem(fl.Field().String())
	return err == nil
}

func validateBaseURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
