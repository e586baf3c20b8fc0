// yarex/pkg/compiler/compiler.go

// Package compiler drives the external engine for a rule: it renders the
// rule, submits it, and on a syntax error resubmits the condition one
// token per line to find the failing token. It also saves rule files and
// reads rules back out of compiled artifacts.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

const (
	DefaultSourceExt   = ".yar"
	DefaultCompiledExt = ".bin"
	DefaultTimeout     = 60 * time.Second
)

// State is the orchestrator's progress through one compile.
type State int

const (
	StateUnrendered State = iota
	StateRendered
	StateSubmitted
	StateCompiled
	StateSyntaxError
)

func (s State) String() string {
	switch s {
	case StateUnrendered:
		return "unrendered"
	case StateRendered:
		return "rendered"
	case StateSubmitted:
		return "submitted"
	case StateCompiled:
		return "compiled"
	case StateSyntaxError:
		return "syntax_error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Compile outcomes passed to a Recorder.
const (
	OutcomeCompiled    = "compiled"
	OutcomeSyntaxError = "syntax_error"
	OutcomeUnlocatable = "unlocatable"
	OutcomeTimeout     = "timeout"
	OutcomeFailed      = "failed"
)

// Recorder receives compile and locate outcomes. pkg/metrics implements it.
type Recorder interface {
	ObserveCompile(outcome string, elapsed time.Duration)
	ObserveLocate(located bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCompile(string, time.Duration) {}
func (nopRecorder) ObserveLocate(bool) {}

type Options struct {
	RulesDir    string
	SourceExt   string
	CompiledExt string
	// Timeout bounds every engine call. Zero means DefaultTimeout.
	Timeout  time.Duration
	Recorder Recorder
}

// Compiler is safe for concurrent use when its engine is.
type Compiler struct {
	engine engine.Engine
	opts   Options
}

func New(eng engine.Engine, opts Options) *Compiler {
	if opts.SourceExt == "" {
		opts.SourceExt = DefaultSourceExt
	}
	if opts.CompiledExt == "" {
		opts.CompiledExt = DefaultCompiledExt
	}
	opts.SourceExt = dotted(opts.SourceExt)
	opts.CompiledExt = dotted(opts.CompiledExt)
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Compiler{engine: eng, opts: opts}
}

func dotted(ext string) string {
	if strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

type CompileOptions struct {
	ErrorOnWarning bool
	// Save writes the source and compiled files under the rules directory
	// after a successful compile.
	Save bool
}

// Result reports how far a compile got. It is returned alongside the error
// on failure.
type Result struct {
	State        State
	Source       string
	Warnings     []engine.Diagnostic
	Artifact     rule.Artifact
	SourcePath   string
	CompiledPath string
}

// Compile renders r and submits it to the engine. On success the artifact
// is recorded on r. A syntax error in the condition comes back as
// *RuleSyntaxError; one that cannot be placed as *UnlocatableSyntaxError;
// an engine timeout as *CompileTimeout.
func (c *Compiler) Compile(ctx context.Context, r *rule.Rule, opts CompileOptions) (*Result, error) {
	start := time.Now()
	res := &Result{State: StateUnrendered}

	res.Source = r.Render()
	res.State = StateRendered

	eopts := engine.CompileOptions{ErrorOnWarning: opts.ErrorOnWarning, Timeout: c.opts.Timeout}
	logging.Logger.Debug().Str("rule", r.Name()).Msg("Submitting rule to engine")
	res.State = StateSubmitted
	out, err := c.engine.Compile(ctx, res.Source, eopts)
	if err == nil {
		return res, c.finish(r, res, out, opts, start)
	}

	if errors.Is(err, engine.ErrTimeout) {
		c.opts.Recorder.ObserveCompile(OutcomeTimeout, time.Since(start))
		return res, &CompileTimeout{Rule: r.Name(), Timeout: c.opts.Timeout}
	}
	var se *engine.SyntaxError
	if !errors.As(err, &se) {
		c.opts.Recorder.ObserveCompile(OutcomeFailed, time.Since(start))
		return res, fmt.Errorf("failed to compile rule %s: %w", r.Name(), err)
	}

	res.State = StateSyntaxError
	locErr := c.locate(ctx, r, se, eopts)

	outcome := OutcomeSyntaxError
	var unloc *UnlocatableSyntaxError
	var timeout *CompileTimeout
	switch {
	case errors.As(locErr, &timeout):
		outcome = OutcomeTimeout
	case errors.As(locErr, &unloc):
		outcome = OutcomeUnlocatable
	}
	c.opts.Recorder.ObserveLocate(outcome == OutcomeSyntaxError)
	c.opts.Recorder.ObserveCompile(outcome, time.Since(start))
	logging.LogError(logging.Logger, locErr)
	return res, locErr
}

func (c *Compiler) finish(r *rule.Rule, res *Result, out *engine.CompileResult, opts CompileOptions, start time.Time) error {
	res.State = StateCompiled
	res.Artifact = out.Artifact
	res.Warnings = out.Warnings
	r.SetCompiled(out.Artifact, "")

	if opts.Save {
		var err error
		if res.SourcePath, err = c.SaveSource(r); err != nil {
			c.opts.Recorder.ObserveCompile(OutcomeFailed, time.Since(start))
			return err
		}
		if res.CompiledPath, err = c.SaveCompiled(r, out.Artifact); err != nil {
			c.opts.Recorder.ObserveCompile(OutcomeFailed, time.Since(start))
			return err
		}
		r.SetCompiled(out.Artifact, res.CompiledPath)
	}

	c.opts.Recorder.ObserveCompile(OutcomeCompiled, time.Since(start))
	logging.Logger.Info().Str("rule", r.Name()).Int("warnings", len(res.Warnings)).Msg("Compiled rule")
	return nil
}

// locate resubmits the condition one token per line and turns the two
// reported lines into a RuleSyntaxError.
func (c *Compiler) locate(ctx context.Context, r *rule.Rule, first *engine.SyntaxError, eopts engine.CompileOptions) error {
	unlocatable := func(reason string, err error) error {
		return &UnlocatableSyntaxError{
			Rule:    r.Name(),
			Line:    first.Line,
			Message: first.Message,
			Raw:     first.Raw,
			Reason:  reason,
			Err:     err,
		}
	}

	if condLine := r.ConditionLine(); first.Line != condLine {
		return unlocatable(fmt.Sprintf("error is on line %d, the condition is on line %d", first.Line, condLine), first)
	}

	_, err := c.engine.Compile(ctx, r.RenderConditionLines(), eopts)
	if err == nil {
		return unlocatable("token-per-line rendering compiled", first)
	}
	if errors.Is(err, engine.ErrTimeout) {
		return &CompileTimeout{Rule: r.Name(), Timeout: c.opts.Timeout}
	}
	var second *engine.SyntaxError
	if !errors.As(err, &second) {
		return unlocatable("token-per-line submission failed without a line", err)
	}

	loc, err := Locate(r.Condition(), first.Line, second.Line)
	if err != nil {
		return unlocatable(err.Error(), first)
	}
	logging.Logger.Debug().Str("rule", r.Name()).Int("column", loc.Column).Str("word", loc.Word).Msg("Located syntax error")

	return &RuleSyntaxError{
		Rule:        r,
		Line:        first.Line,
		Column:      loc.Column,
		ColumnRange: loc.ColumnRange,
		Word:        loc.Word,
		Reason:      first.Message,
		Raw:         first.Raw,
	}
}
