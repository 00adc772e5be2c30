package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Decimals are validated through their exact string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("dgte", decimalGTE); err != nil {
		panic(err)
	}
	return v
}

// decimalGTE implements dgte=<min>: the decimal field is at least min, compared exactly.
func decimalGTE(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	value, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return value.Cmp(decimal.RequireFromString(fl.Param())) >= 0
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// BadRequestErrorResponse is the 400 body for requests that fail validation.
type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

func validateRequest(obj any) []ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Type:    fe.Tag(),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "gt":
		return "Value must be greater than " + fe.Param()
	case "gte", "dgte":
		return "Value must be greater than or equal to " + fe.Param()
	default:
		return "Invalid value"
	}
}
