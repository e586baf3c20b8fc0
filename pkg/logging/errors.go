// yarex/pkg/logging/errors.go

package logging

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeParse      ErrorType = "PARSE"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeLex        ErrorType = "LEX"
	ErrorTypeCompile    ErrorType = "COMPILE"
	ErrorTypeSyntax     ErrorType = "SYNTAX"
	ErrorTypeArtifact   ErrorType = "ARTIFACT"
	ErrorTypeTimeout    ErrorType = "TIMEOUT"
	ErrorTypeStore      ErrorType = "STORE"
	ErrorTypeConfig     ErrorType = "CONFIG"
)

type YarexError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *YarexError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *YarexError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *YarexError {
	return &YarexError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

// Fielder is implemented by domain errors that carry structured context.
type Fielder interface {
	error
	ErrorType() ErrorType
	ErrorFields() map[string]interface{}
}

func LogError(logger zerolog.Logger, err error) {
	var yErr *YarexError
	if errors.As(err, &yErr) {
		event := logger.Error().Err(yErr.Err).
			Str("error_type", string(yErr.Type)).
			Str("message", yErr.Message)

		for k, v := range yErr.Fields {
			event = event.Interface(k, v)
		}

		event.Msg(yErr.Message)
		return
	}

	var f Fielder
	if errors.As(err, &f) {
		event := logger.Error().Str("error_type", string(f.ErrorType()))
		for k, v := range f.ErrorFields() {
			event = event.Interface(k, v)
		}
		event.Msg(f.Error())
		return
	}

	logger.Error().Err(err).Msg(err.Error())
}
