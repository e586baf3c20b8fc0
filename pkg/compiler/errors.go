// yarex/pkg/compiler/errors.go

package compiler

import (
	"fmt"
	"time"

	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

// RuleSyntaxError is an engine syntax error placed on a token of the
// rule's condition. Columns are 1-based and refer to the condition line of
// the normal rendering.
type RuleSyntaxError struct {
	Rule        *rule.Rule
	Line        int
	Column      int
	ColumnRange int
	Word        string
	Reason      string
	Raw         string
}

func (e *RuleSyntaxError) Error() string {
	return fmt.Sprintf("%s in string '%s', columns: %d-%d.", e.Reason, e.Word, e.Column, e.ColumnRange)
}

func (e *RuleSyntaxError) ErrorType() logging.ErrorType { return logging.ErrorTypeSyntax }

func (e *RuleSyntaxError) ErrorFields() map[string]interface{} {
	fields := map[string]interface{}{
		"line":         e.Line,
		"column":       e.Column,
		"column_range": e.ColumnRange,
		"word":         e.Word,
	}
	if e.Rule != nil {
		fields["rule"] = e.Rule.Name()
	}
	return fields
}

// UnlocatableSyntaxError is an engine syntax error whose position inside
// the condition could not be recovered. Only the engine's own message is
// reported.
type UnlocatableSyntaxError struct {
	Rule    string
	Line    int
	Message string
	Raw     string
	// Reason says why locating failed.
	Reason string
	Err    error
}

func (e *UnlocatableSyntaxError) Error() string {
	return fmt.Sprintf("syntax error in rule %s at line %d: %s", e.Rule, e.Line, e.Message)
}

func (e *UnlocatableSyntaxError) Unwrap() error { return e.Err }

func (e *UnlocatableSyntaxError) ErrorType() logging.ErrorType { return logging.ErrorTypeSyntax }

func (e *UnlocatableSyntaxError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{
		"rule":   e.Rule,
		"line":   e.Line,
		"raw":    e.Raw,
		"reason": e.Reason,
	}
}

// CompileTimeout means the engine ran past its budget. The caller may retry
// with a larger timeout.
type CompileTimeout struct {
	Rule    string
	Timeout time.Duration
}

func (e *CompileTimeout) Error() string {
	return fmt.Sprintf("engine timed out after %s on rule %s", e.Timeout, e.Rule)
}

func (e *CompileTimeout) Unwrap() error { return engine.ErrTimeout }

func (e *CompileTimeout) ErrorType() logging.ErrorType { return logging.ErrorTypeTimeout }

func (e *CompileTimeout) ErrorFields() map[string]interface{} {
	return map[string]interface{}{"rule": e.Rule, "timeout": e.Timeout.String()}
}

// ArtifactLoadError means a compiled artifact could not be loaded or
// matched.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("failed to load compiled rule %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

func (e *ArtifactLoadError) ErrorType() logging.ErrorType { return logging.ErrorTypeArtifact }

func (e *ArtifactLoadError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{"path": e.Path}
}

// NoMatchError means an artifact did not match its own source file, so no
// rule could be read back from it.
type NoMatchError struct {
	Path       string
	SourcePath string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("compiled rule %s produced no match against %s", e.Path, e.SourcePath)
}

func (e *NoMatchError) ErrorType() logging.ErrorType { return logging.ErrorTypeArtifact }

func (e *NoMatchError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{"path": e.Path, "source": e.SourcePath}
}
