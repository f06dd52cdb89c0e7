package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}
		return true
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return true
		}
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Error is a request validation failure. Fields maps the json field name to a short reason.
type Error struct {
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

// DecodeJSON reads a JSON object from r into dest. An empty body decodes to the zero value.
func DecodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Message: "invalid request body", Fields: map[string]string{"body": err.Error()}}
	}
	return nil
}

// Struct validates dest against its `validate` tags.
func Struct(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// DecodeJSONBody decodes and validates in one step.
func DecodeJSONBody(r *http.Request, dest any) error {
	if err := DecodeJSON(r, dest); err != nil {
		return err
	}
	return Struct(dest)
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for _, fieldErr := range errs {
			fields[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return &Error{Message: "validation failed", Fields: fields}
	}
	return &Error{Message: "validation failed", Fields: map[string]string{"body": err.Error()}}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "email":
		return "must be a valid email"
	case "finite":
		return "must be a finite number"
	}
	return "is invalid"
}
