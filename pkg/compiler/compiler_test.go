// yarex/pkg/compiler/compiler_test.go

package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/rule"
)

const scenarioJSON = `{
	"name": "Test Rule!",
	"tags": ["foo"],
	"meta": [{"identifier": "desc", "value": "x", "value_type": "string"}],
	"patterns": [{"identifier": "a1", "value": "abc", "value_type": "text", "string_type": "text", "modifiers": []}],
	"condition": "$a1"
}`

func scenarioRule(t *testing.T) *rule.Rule {
	t.Helper()
	req, err := rule.Parse([]byte(scenarioJSON))
	require.NoError(t, err)
	r, err := rule.FromRequest(req)
	require.NoError(t, err)
	return r
}

func newRule(t *testing.T, name, condition string, patternIDs ...string) *rule.Rule {
	t.Helper()
	req := &rule.Request{Name: name, Condition: condition}
	for _, id := range patternIDs {
		req.Strings = append(req.Strings, rule.PatternRequest{Identifier: id, Value: "value of " + id})
	}
	r, err := rule.FromRequest(req)
	require.NoError(t, err)
	return r
}

func newTestCompiler(t *testing.T, eng engine.Engine, rec Recorder) *Compiler {
	t.Helper()
	return New(eng, Options{RulesDir: filepath.Join(t.TempDir(), "rules"), Recorder: rec})
}

func TestNewDefaults(t *testing.T) {
	c := New(&fakeEngine{}, Options{RulesDir: "/r", SourceExt: "yara"})
	assert.Equal(t, ".yara", c.opts.SourceExt)
	assert.Equal(t, DefaultCompiledExt, c.opts.CompiledExt)
	assert.Equal(t, DefaultTimeout, c.opts.Timeout)
	assert.Equal(t, filepath.Join("/r", "x.yara"), c.SourcePath("x"))
	assert.Equal(t, filepath.Join("/r", "x.bin"), c.CompiledPath("x"))
}

func TestCompileScenario(t *testing.T) {
	eng := &fakeEngine{}
	rec := newCountingRecorder()
	c := newTestCompiler(t, eng, rec)
	r := scenarioRule(t)

	res, err := c.Compile(context.Background(), r, CompileOptions{Save: true})
	require.NoError(t, err)

	assert.Equal(t, StateCompiled, res.State)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, r.Render(), res.Source)
	require.Len(t, eng.Submissions(), 1)
	assert.Equal(t, r.Render(), eng.Submissions()[0])
	assert.Equal(t, 1, rec.compiles[OutcomeCompiled])

	src, err := os.ReadFile(res.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, r.Render(), string(src))

	compiled, err := os.ReadFile(res.CompiledPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(compiled, []byte("YARA")))

	assert.Equal(t, res.Artifact, r.Compiled())
	assert.Equal(t, res.CompiledPath, r.CompiledPath())
	assert.Equal(t, "TestRule.yar", filepath.Base(res.SourcePath))
}

func TestCompileWithoutSave(t *testing.T) {
	c := newTestCompiler(t, &fakeEngine{}, nil)
	r := scenarioRule(t)

	res, err := c.Compile(context.Background(), r, CompileOptions{ErrorOnWarning: true})
	require.NoError(t, err)
	assert.Empty(t, res.SourcePath)
	assert.NotNil(t, r.Compiled())
	assert.Empty(t, r.CompiledPath())

	_, err = os.Stat(c.SourcePath(r.Name()))
	assert.True(t, os.IsNotExist(err))
}

func TestCompilePassesOptions(t *testing.T) {
	eng := &fakeEngine{}
	c := New(eng, Options{RulesDir: t.TempDir(), Timeout: 5 * time.Second})

	_, err := c.Compile(context.Background(), scenarioRule(t), CompileOptions{ErrorOnWarning: true})
	require.NoError(t, err)
	require.Len(t, eng.options, 1)
	assert.Equal(t, engine.CompileOptions{ErrorOnWarning: true, Timeout: 5 * time.Second}, eng.options[0])
}

func TestCompileWarnings(t *testing.T) {
	eng := &fakeEngine{compileHook: func(n int, source string) (*engine.CompileResult, error) {
		return &engine.CompileResult{
			Artifact: fakeArtifact{source: source},
			Warnings: []engine.Diagnostic{{Line: 7, Message: "slow", Warning: true}},
		}, nil
	}}
	res, err := newTestCompiler(t, eng, nil).Compile(context.Background(), scenarioRule(t), CompileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "slow", res.Warnings[0].Message)
}

func TestCompileMissingReference(t *testing.T) {
	eng := &fakeEngine{}
	rec := newCountingRecorder()
	c := newTestCompiler(t, eng, rec)
	r, err := rule.FromRequest(&rule.Request{Name: "broken", Condition: "$missing"})
	require.NoError(t, err)

	assert.Empty(t, r.ReferencedPatterns())
	assert.NotContains(t, r.Render(), "strings:")

	res, err := c.Compile(context.Background(), r, CompileOptions{})
	require.Error(t, err)
	assert.Equal(t, StateSyntaxError, res.State)

	var rse *RuleSyntaxError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, r.ConditionLine(), rse.Line)
	assert.Equal(t, "$missing", rse.Word)
	assert.Equal(t, 9, rse.Column)
	assert.Equal(t, 17, rse.ColumnRange)
	assert.Same(t, r, rse.Rule)
	assert.Equal(t, `undefined string identifier "$missing" in string '$missing', columns: 9-17.`, rse.Error())

	subs := eng.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, r.RenderConditionLines(), subs[1])

	assert.Equal(t, 1, rec.compiles[OutcomeSyntaxError])
	assert.Equal(t, 1, rec.located)
}

func TestCompileLocatesLaterToken(t *testing.T) {
	c := newTestCompiler(t, &fakeEngine{}, nil)
	r := newRule(t, "partial", "$a and $b", "a")

	_, err := c.Compile(context.Background(), r, CompileOptions{})
	var rse *RuleSyntaxError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, "$b", rse.Word)
	assert.Equal(t, 16, rse.Column)
	assert.Equal(t, 18, rse.ColumnRange)

	// The column points at the word on the rendered condition line.
	lines := bytes.Split([]byte(r.Render()), []byte("\n"))
	condLine := string(lines[r.ConditionLine()-1])
	assert.Equal(t, "$b", condLine[rse.Column-1:rse.ColumnRange-1])
}

func TestCompileUnlocatable(t *testing.T) {
	r := newRule(t, "r", "$a", "a")
	condLine := r.ConditionLine()

	tests := []struct {
		name   string
		hook   func(n int, source string) (*engine.CompileResult, error)
		submit int
	}{
		{
			name: "Error outside the condition",
			hook: func(n int, source string) (*engine.CompileResult, error) {
				return nil, &engine.SyntaxError{Line: 3, Message: "duplicated string identifier"}
			},
			submit: 1,
		},
		{
			name: "Second submission compiles",
			hook: func(n int, source string) (*engine.CompileResult, error) {
				if n == 0 {
					return nil, &engine.SyntaxError{Line: condLine, Message: "bad"}
				}
				return &engine.CompileResult{Artifact: fakeArtifact{source: source}}, nil
			},
			submit: 2,
		},
		{
			name: "Second line past the condition",
			hook: func(n int, source string) (*engine.CompileResult, error) {
				return nil, &engine.SyntaxError{Line: condLine + 4*n, Message: "bad"}
			},
			submit: 2,
		},
		{
			name: "Second line before the first",
			hook: func(n int, source string) (*engine.CompileResult, error) {
				return nil, &engine.SyntaxError{Line: condLine - n, Message: "bad"}
			},
			submit: 2,
		},
		{
			name: "Second failure has no line",
			hook: func(n int, source string) (*engine.CompileResult, error) {
				if n == 0 {
					return nil, &engine.SyntaxError{Line: condLine, Message: "bad"}
				}
				return nil, errors.New("engine crashed")
			},
			submit: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{compileHook: tt.hook}
			rec := newCountingRecorder()
			res, err := newTestCompiler(t, eng, rec).Compile(context.Background(), r, CompileOptions{})

			var unloc *UnlocatableSyntaxError
			require.True(t, errors.As(err, &unloc), "got %v", err)
			assert.Equal(t, "r", unloc.Rule)
			assert.NotEmpty(t, unloc.Reason)
			assert.Equal(t, StateSyntaxError, res.State)
			assert.Len(t, eng.Submissions(), tt.submit)

			var rse *RuleSyntaxError
			assert.False(t, errors.As(err, &rse))
			assert.Equal(t, 1, rec.compiles[OutcomeUnlocatable])
			assert.Equal(t, 1, rec.unlocated)
		})
	}
}

func TestCompileTimeout(t *testing.T) {
	t.Run("First submission", func(t *testing.T) {
		eng := &fakeEngine{compileHook: func(int, string) (*engine.CompileResult, error) {
			return nil, engine.ErrTimeout
		}}
		rec := newCountingRecorder()
		_, err := newTestCompiler(t, eng, rec).Compile(context.Background(), scenarioRule(t), CompileOptions{})

		var ct *CompileTimeout
		require.True(t, errors.As(err, &ct))
		assert.Equal(t, "TestRule", ct.Rule)
		assert.Equal(t, DefaultTimeout, ct.Timeout)
		assert.ErrorIs(t, err, engine.ErrTimeout)
		assert.Equal(t, 1, rec.compiles[OutcomeTimeout])
	})

	t.Run("Locating submission", func(t *testing.T) {
		r := newRule(t, "r", "$a", "a")
		eng := &fakeEngine{compileHook: func(n int, _ string) (*engine.CompileResult, error) {
			if n == 0 {
				return nil, &engine.SyntaxError{Line: r.ConditionLine(), Message: "bad"}
			}
			return nil, fmt.Errorf("wrapped: %w", engine.ErrTimeout)
		}}
		_, err := newTestCompiler(t, eng, nil).Compile(context.Background(), r, CompileOptions{})
		var ct *CompileTimeout
		assert.True(t, errors.As(err, &ct))
	})
}

func TestCompileEngineFailure(t *testing.T) {
	eng := &fakeEngine{compileHook: func(int, string) (*engine.CompileResult, error) {
		return nil, errors.New("cannot start")
	}}
	rec := newCountingRecorder()
	res, err := newTestCompiler(t, eng, rec).Compile(context.Background(), scenarioRule(t), CompileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start")
	assert.Equal(t, StateSubmitted, res.State)
	assert.Equal(t, 1, rec.compiles[OutcomeFailed])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unrendered", StateUnrendered.String())
	assert.Equal(t, "syntax_error", StateSyntaxError.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestConcurrentCompileAndLoad(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestCompiler(t, eng, newCountingRecorder())

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("rule_%d", i)
			req := &rule.Request{
				Name:      name,
				Tags:      []string{fmt.Sprintf("t%d", i)},
				Strings:   []rule.PatternRequest{{Identifier: "s", Value: fmt.Sprintf("needle-%d", i)}},
				Condition: "$s",
			}
			r, err := rule.FromRequest(req)
			if err != nil {
				errs <- err
				return
			}
			if _, err := c.Compile(context.Background(), r, CompileOptions{Save: true}); err != nil {
				errs <- err
				return
			}
			loaded, err := c.LoadRule(context.Background(), name, LoadOptions{RecoverCondition: true})
			if err != nil {
				errs <- err
				return
			}
			if loaded.Name() != name || loaded.Tags()[0] != req.Tags[0] || loaded.Patterns()[0].Value() != req.Strings[0].Value {
				errs <- fmt.Errorf("rule %s loaded as %s %v", name, loaded.Name(), loaded.Tags())
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
