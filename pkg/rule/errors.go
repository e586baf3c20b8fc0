// yarex/pkg/rule/errors.go

package rule

import (
	"fmt"

	"rgehrsitz/yarex/pkg/logging"
)

// ValidationError reports a missing or malformed field of a structured rule
// request. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) ErrorType() logging.ErrorType {
	return logging.ErrorTypeValidation
}

func (e *ValidationError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{"field": e.Field}
}

func validationErrorf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
