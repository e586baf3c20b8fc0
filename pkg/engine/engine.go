// yarex/pkg/engine/engine.go

// Package engine is the contract with the external rule-matching engine:
// rule source goes in, a compiled artifact or a line-numbered diagnostic
// comes out, and artifacts can be loaded and matched against files.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

// ErrTimeout is returned when the engine exceeds its time budget.
var ErrTimeout = errors.New("engine timed out")

type CompileOptions struct {
	// ErrorOnWarning turns compiler warnings into failures.
	ErrorOnWarning bool
	Timeout        time.Duration
}

type CompileResult struct {
	Artifact rule.Artifact
	Warnings []Diagnostic
}

// MatchAction tells the engine whether to keep reporting records.
type MatchAction int

const (
	MatchContinue MatchAction = iota
	MatchAbort
)

// MatchCallback receives one record per rule evaluated.
type MatchCallback func(MatchRecord) MatchAction

type MetaValue struct {
	Key   string
	Value interface{}
}

type StringMatch struct {
	Offset     int64
	Identifier string
	Data       []byte
}

// MatchRecord is what the engine reports for one rule of an artifact.
type MatchRecord struct {
	Rule      string
	Namespace string
	Matches   bool
	Tags      []string
	Meta      []MetaValue
	Strings   []StringMatch
}

// Engine compiles rule source, loads compiled artifacts and matches them
// against files. Implementations must be safe for concurrent use.
type Engine interface {
	Compile(ctx context.Context, source string, opts CompileOptions) (*CompileResult, error)
	Load(ctx context.Context, path string) (rule.Artifact, error)
	Match(ctx context.Context, artifact rule.Artifact, path string, timeout time.Duration, cb MatchCallback) error
}

// SyntaxError is a compile failure the engine attributed to a line of the
// submitted source.
type SyntaxError struct {
	Line    int
	Message string
	// Raw is the engine output the diagnostic was read from.
	Raw     string
	Warning bool
}

func (e *SyntaxError) Error() string {
	kind := "error"
	if e.Warning {
		kind = "warning"
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, kind, e.Message)
}

func (e *SyntaxError) ErrorType() logging.ErrorType {
	return logging.ErrorTypeSyntax
}

func (e *SyntaxError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{
		"line":    e.Line,
		"warning": e.Warning,
		"raw":     e.Raw,
	}
}
