// Package validate wraps a shared go-playground validator configured with
// JSON field names and the project's custom tags.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/novap2p/novap2p/shared/errs"
)

var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = val.RegisterValidation("ifsc", func(fl validator.FieldLevel) bool {
		return ifscPattern.MatchString(fl.Field().String())
	})
	return val
}

// IsIFSC reports whether code is a well-formed Indian Financial System Code.
func IsIFSC(code string) bool {
	return ifscPattern.MatchString(code)
}

// Struct validates obj and returns one FieldError per failed constraint,
// or nil when obj is valid.
func Struct(obj any) []errs.FieldError {
	err := v.Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []errs.FieldError{{Field: "", Message: err.Error(), Type: "invalid"}}
	}
	out := make([]errs.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errs.FieldError{
			Field:   fe.Field(),
			Message: message(fe),
			Type:    fe.Tag(),
		})
	}
	return out
}

// Check is Struct wrapped in a *errs.ValidationError.
func Check(obj any) error {
	if fields := Struct(obj); fields != nil {
		return &errs.ValidationError{Fields: fields}
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "eqfield":
		return "Must match " + fe.Param()
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "ifsc":
		return "Invalid IFSC code"
	case "gt":
		return "Value must be greater than " + fe.Param()
	default:
		return "Invalid value"
	}
}
