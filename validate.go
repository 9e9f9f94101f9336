package techmate

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator builds the shared struct validator. Field names in reported
// errors follow the json tag so they line up with the server's own
// field-error maps.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateInput runs struct validation and converts failures into a
// *ValidationError keyed by json field name. Requests that fail here are
// never sent to the server.
func (c *Client) validateInput(in any) error {
	err := c.validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "does not match " + fe.Param()
	default:
		return "invalid value"
	}
}
