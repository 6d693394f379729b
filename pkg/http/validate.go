package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their query (or json) name so errors
// match what the caller actually sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds req from path, query or body, applies
// `default` tags and runs validator tags. It returns []ValidationError or nil.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			ve := ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
			}
			if fe.Param() != "" {
				ve.Params = map[string]interface{}{"param": fe.Param()}
				if fe.Tag() == "oneof" {
					ve.Params = map[string]interface{}{"options": strings.Fields(fe.Param())}
				}
			}
			out = append(out, ve)
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	field, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "eq":
		return fmt.Sprintf("%s must be %s", field, p)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(p), ", "))
	case "alpha":
		return field + " must contain letters only"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, p)
		}
		return fmt.Sprintf("%s must be at most %s", field, p)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, p)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, p)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, p)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
