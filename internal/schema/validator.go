// Package schema defines the request bodies of the HTTP API and validates
// them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CreateSessionRequest opens a voice session.
type CreateSessionRequest struct {
	PermissionGranted bool   `json:"permissionGranted"`
	Language          string `json:"language" validate:"omitempty,bcp47_language_tag"`
}

// EventRequest carries one recognition event from a device recognizer.
// Payload is kept raw because recognizers disagree on its shape.
type EventRequest struct {
	Kind    string          `json:"kind" validate:"required,oneof=interim result error"`
	Payload json.RawMessage `json:"payload"`
	Code    string          `json:"code" validate:"required_if=Kind error,max=64"`
	Message string          `json:"message" validate:"max=1024"`
}

// ValidationError lists every rule a request broke.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Fields, "; ")
}

// Validator checks request structs against their validate tags.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns a *ValidationError describing every failed field, or nil.
func (v *Validator) Validate(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		out.Fields = append(out.Fields, msg)
	}
	return out
}
