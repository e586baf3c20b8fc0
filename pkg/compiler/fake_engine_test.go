// yarex/pkg/compiler/fake_engine_test.go

package compiler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/parser"
	"rgehrsitz/yarex/pkg/rule"
)

var (
	fakeDeclaration = regexp.MustCompile(`^\$(\w+)\s*=`)
	fakeReference   = regexp.MustCompile(`\$(\w+)(\*?)`)
)

// fakeArtifact is what fakeEngine compiles to: the magic plus the source.
type fakeArtifact struct {
	source string
}

func (a fakeArtifact) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "YARA"+a.source)
	return int64(n), err
}

// fakeEngine behaves like the real engine for the cases the compiler
// cares about: undefined string identifiers in the condition are reported
// on the line they appear, and an artifact matched against its own source
// reports the rule's name, tags, metadata and text strings.
type fakeEngine struct {
	mu          sync.Mutex
	submissions []string
	options     []engine.CompileOptions

	// compileHook, when set, replaces the emulation for submission n.
	compileHook func(n int, source string) (*engine.CompileResult, error)
	// matchHook, when set, replaces the self-match emulation.
	matchHook func(path string) ([]engine.MatchRecord, error)
	loadErr   error
}

func (f *fakeEngine) Compile(ctx context.Context, source string, opts engine.CompileOptions) (*engine.CompileResult, error) {
	f.mu.Lock()
	n := len(f.submissions)
	f.submissions = append(f.submissions, source)
	f.options = append(f.options, opts)
	hook := f.compileHook
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook != nil {
		return hook(n, source)
	}
	return emulateCompile(source)
}

func (f *fakeEngine) Submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submissions...)
}

func emulateCompile(source string) (*engine.CompileResult, error) {
	declared := map[string]bool{}
	inCondition := false
	for i, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "condition:" {
			inCondition = true
			continue
		}
		if !inCondition {
			if m := fakeDeclaration.FindStringSubmatch(trimmed); m != nil {
				declared[m[1]] = true
			}
			continue
		}
		if trimmed == "}" {
			break
		}
		for _, m := range fakeReference.FindAllStringSubmatch(line, -1) {
			if m[2] == "*" || declared[m[1]] {
				continue
			}
			msg := fmt.Sprintf(`undefined string identifier "$%s"`, m[1])
			return nil, &engine.SyntaxError{
				Line:    i + 1,
				Message: msg,
				Raw:     fmt.Sprintf("rule.yar(%d): error: %s", i+1, msg),
			}
		}
	}
	return &engine.CompileResult{Artifact: fakeArtifact{source: source}}, nil
}

func (f *fakeEngine) Load(ctx context.Context, path string) (rule.Artifact, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, []byte("YARA")) {
		return nil, fmt.Errorf("not a compiled rules file")
	}
	return fakeArtifact{source: string(data[4:])}, nil
}

func (f *fakeEngine) Match(ctx context.Context, artifact rule.Artifact, path string, timeout time.Duration, cb engine.MatchCallback) error {
	var records []engine.MatchRecord
	var err error
	if f.matchHook != nil {
		records, err = f.matchHook(path)
	} else {
		records, err = emulateSelfMatch(path)
	}
	if err != nil {
		return err
	}
	for _, rec := range records {
		if cb(rec) == engine.MatchAbort {
			break
		}
	}
	return nil
}

func emulateSelfMatch(path string) ([]engine.MatchRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	req, err := parser.ParseSource(string(data))
	if err != nil {
		return nil, err
	}

	rec := engine.MatchRecord{Rule: req.Name, Namespace: "default", Matches: true, Tags: req.Tags}
	for _, m := range req.Meta {
		rec.Meta = append(rec.Meta, engine.MetaValue{Key: m.Identifier, Value: m.Value})
	}
	for _, s := range req.Strings {
		if s.StringType != "text" {
			continue
		}
		if off := strings.Index(string(data), s.Value); off >= 0 {
			rec.Strings = append(rec.Strings, engine.StringMatch{Offset: int64(off), Identifier: "$" + s.Identifier, Data: []byte(s.Value)})
		}
	}
	return []engine.MatchRecord{rec}, nil
}

// countingRecorder tallies outcomes.
type countingRecorder struct {
	mu        sync.Mutex
	compiles  map[string]int
	located   int
	unlocated int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{compiles: map[string]int{}}
}

func (r *countingRecorder) ObserveCompile(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiles[outcome]++
}

func (r *countingRecorder) ObserveLocate(located bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if located {
		r.located++
	} else {
		r.unlocated++
	}
}
