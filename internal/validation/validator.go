// Package validation wraps a shared go-playground validator and renders its
// field errors as one readable error.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule.
type FieldError struct {
	Namespace string
	Tag       string
	Param     string
	Message   string
}

// Error collects every failed rule of one Struct call.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Get returns the process-wide validator. It caches struct metadata, so it is
// built once.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates s. It returns nil or an *Error.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: []FieldError{{Namespace: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := &Error{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Namespace: fe.Namespace(),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Message:   translate(fe),
		})
	}
	return out
}

var messages = map[string]string{
	"required": "%s is required",
	"oneof":    "%s must be one of: %s",
	"gte":      "%s must be greater than or equal to %s",
	"lte":      "%s must be less than or equal to %s",
	"gt":       "%s must be greater than %s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gtefield": "%s must be greater than or equal to %s",
}

func translate(fe validator.FieldError) string {
	field := fe.Namespace()
	if tmpl, ok := messages[fe.Tag()]; ok {
		if strings.Count(tmpl, "%s") == 2 {
			return fmt.Sprintf(tmpl, field, fe.Param())
		}
		return fmt.Sprintf(tmpl, field)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
