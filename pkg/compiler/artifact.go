// yarex/pkg/compiler/artifact.go

package compiler

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/parser"
	"rgehrsitz/yarex/pkg/rule"
)

type LoadOptions struct {
	// Condition is set on the loaded rule. A compiled artifact does not
	// carry its condition.
	Condition string
	// RecoverCondition reads the condition from the source file when
	// Condition is empty.
	RecoverCondition bool
	// Timeout bounds the self-match. Zero means the compiler's timeout.
	Timeout time.Duration
}

// matchAccumulator captures the record of one Match call.
type matchAccumulator struct {
	records []engine.MatchRecord
}

// callback keeps the first record and stops the engine.
func (a *matchAccumulator) callback(rec engine.MatchRecord) engine.MatchAction {
	a.records = append(a.records, rec)
	return engine.MatchAbort
}

func (a *matchAccumulator) first() (engine.MatchRecord, bool) {
	if len(a.records) == 0 {
		return engine.MatchRecord{}, false
	}
	return a.records[0], true
}

// LoadRule reads the named rule back from its saved compiled and source
// files under the rules directory.
func (c *Compiler) LoadRule(ctx context.Context, name string, opts LoadOptions) (*rule.Rule, error) {
	return c.RuleFromArtifact(ctx, c.CompiledPath(name), c.SourcePath(name), opts)
}

// RuleFromArtifact loads the artifact at compiledPath and matches it
// against sourcePath, the rule's own source, to recover its name,
// namespace, tags, metadata and matched strings.
func (c *Compiler) RuleFromArtifact(ctx context.Context, compiledPath, sourcePath string, opts LoadOptions) (*rule.Rule, error) {
	logging.Logger.Debug().Str("compiled", compiledPath).Str("source", sourcePath).Msg("Loading rule from artifact")

	artifact, err := c.engine.Load(ctx, compiledPath)
	if err != nil {
		return nil, &ArtifactLoadError{Path: compiledPath, Err: err}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}

	acc := &matchAccumulator{}
	if err := c.engine.Match(ctx, artifact, sourcePath, timeout, acc.callback); err != nil {
		if errors.Is(err, engine.ErrTimeout) {
			return nil, &CompileTimeout{Rule: filepath.Base(compiledPath), Timeout: timeout}
		}
		return nil, &ArtifactLoadError{Path: compiledPath, Err: err}
	}

	rec, ok := acc.first()
	if !ok || !rec.Matches {
		return nil, &NoMatchError{Path: compiledPath, SourcePath: sourcePath}
	}

	r, err := ruleFromRecord(rec, c.condition(sourcePath, opts))
	if err != nil {
		return nil, &ArtifactLoadError{Path: compiledPath, Err: err}
	}
	r.SetNamespace(rec.Namespace)
	r.SetCompiled(artifact, compiledPath)
	return r, nil
}

func (c *Compiler) condition(sourcePath string, opts LoadOptions) string {
	if opts.Condition != "" || !opts.RecoverCondition {
		return opts.Condition
	}
	req, err := parser.ParseFile(sourcePath)
	if err != nil {
		logging.Logger.Warn().Err(err).Str("source", sourcePath).Msg("Could not recover condition from source")
		return ""
	}
	return req.Condition
}

// ruleFromRecord builds a rule from a match record. Each string
// identifier becomes one text pattern holding the first data it matched.
func ruleFromRecord(rec engine.MatchRecord, condition string) (*rule.Rule, error) {
	meta := make([]rule.MetaEntry, 0, len(rec.Meta))
	for _, m := range rec.Meta {
		entry, err := rule.InferMeta(m.Key, m.Value)
		if err != nil {
			return nil, err
		}
		meta = append(meta, entry)
	}

	seen := make(map[string]bool)
	var patterns []rule.PatternEntry
	for _, s := range rec.Strings {
		if seen[s.Identifier] {
			continue
		}
		seen[s.Identifier] = true
		p, err := rule.TextPattern(s.Identifier, string(s.Data))
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}

	return rule.New(rec.Rule, rec.Tags, meta, patterns, condition), nil
}
