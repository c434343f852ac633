package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/subjectboard/server/internal/domain/ids"
)

// ClearSentinel is the field value clients send to blank a stored field.
const ClearSentinel = "-"

// FieldErrors maps JSON field names to human readable messages. Message holds
// the first failure in the form `"field" is required`.
type FieldErrors struct {
	Message string
	Fields  map[string]string
}

func (e *FieldErrors) Error() string {
	return e.Message
}

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the request tags registered:
//
//	entityid  a ULID (group and content identifiers)
//	weblink   an http(s) URL or the clear sentinel "-"
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
			return ids.IsULID(fl.Field().String())
		})
		_ = v.RegisterValidation("weblink", func(fl validator.FieldLevel) bool {
			value := strings.TrimSpace(fl.Field().String())
			if value == ClearSentinel {
				return true
			}
			return value != "" && ValidateURL(value, fl.FieldName(), false) == nil
		})
		validate = v
	})
	return validate
}

// Struct validates a request struct and converts failures into FieldErrors.
func Struct(req any) error {
	err := Validator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &FieldErrors{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg := describe(fe)
		if out.Message == "" {
			out.Message = msg
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}

// SortedFields returns the failing field names in a stable order.
func (e *FieldErrors) SortedFields() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func describe(fe validator.FieldError) string {
	field := fmt.Sprintf("%q", fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "entityid":
		return field + " must be a valid id"
	case "weblink", "http_url", "url":
		return field + " must be a valid http(s) URL"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the %q rule", field, fe.Tag())
	}
}

// Field builds a single-field failure, for checks that run outside the
// struct tags (timestamps, sentinel rules).
func Field(name, message string) *FieldErrors {
	msg := fmt.Sprintf("%q %s", name, message)
	return &FieldErrors{Message: msg, Fields: map[string]string{name: msg}}
}
