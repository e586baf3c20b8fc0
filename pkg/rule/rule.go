// yarex/pkg/rule/rule.go

package rule

import (
	"io"
	"strings"

	"rgehrsitz/yarex/pkg/ident"
)

// Artifact is the opaque compiled form of a rule set handed back by the
// matching engine. It can only be written out.
type Artifact interface {
	io.WriterTo
}

// Rule is a single detection rule: identifier, tags, metadata, patterns
// and a boolean condition over the patterns. Fields change only through the
// setters below.
type Rule struct {
	name         string
	tags         []string
	meta         []MetaEntry
	patterns     []PatternEntry
	condition    string
	namespace    string
	compiled     Artifact
	compiledPath string
}

// New builds a rule, sanitizing the name, every tag and every pattern
// reference in the condition.
func New(name string, tags []string, meta []MetaEntry, patterns []PatternEntry, condition string) *Rule {
	r := &Rule{
		name:      ident.SanitizeIdentifier(name),
		meta:      append([]MetaEntry(nil), meta...),
		patterns:  append([]PatternEntry(nil), patterns...),
		condition: SanitizeCondition(condition),
	}
	for _, t := range tags {
		if tag := ident.SanitizeIdentifier(t); tag != "" {
			r.tags = append(r.tags, tag)
		}
	}
	return r
}

func (r *Rule) Name() string { return r.name }
func (r *Rule) Condition() string { return r.condition }
func (r *Rule) Namespace() string { return r.namespace }
func (r *Rule) Compiled() Artifact { return r.compiled }
func (r *Rule) CompiledPath() string { return r.compiledPath }

func (r *Rule) Tags() []string {
	return append([]string(nil), r.tags...)
}

func (r *Rule) Meta() []MetaEntry {
	return append([]MetaEntry(nil), r.meta...)
}

func (r *Rule) Patterns() []PatternEntry {
	return append([]PatternEntry(nil), r.patterns...)
}

// SetCondition replaces the condition, sanitizing its pattern references.
func (r *Rule) SetCondition(condition string) {
	r.condition = SanitizeCondition(condition)
}

func (r *Rule) SetNamespace(namespace string) {
	r.namespace = namespace
}

// SetCompiled records the artifact produced for this rule and where it was
// saved; path may be empty when the artifact was not persisted.
func (r *Rule) SetCompiled(artifact Artifact, path string) {
	r.compiled = artifact
	r.compiledPath = path
}

// ToRequest converts the rule back into its structured request form.
func (r *Rule) ToRequest() *Request {
	req := &Request{
		Name:      r.name,
		Tags:      r.Tags(),
		Condition: r.condition,
	}
	for _, m := range r.meta {
		req.Meta = append(req.Meta, MetaRequest{
			Identifier: m.identifier,
			Value:      m.value,
			ValueType:  m.typ.String(),
		})
	}
	for _, p := range r.patterns {
		req.Strings = append(req.Strings, PatternRequest{
			Identifier: p.identifier,
			Value:      p.value,
			ValueType:  p.valueType.String(),
			StringType: p.stringType.String(),
			Modifiers:  p.Modifiers(),
		})
	}
	return req
}

// SanitizeCondition sanitizes the identifier run following each sigil so
// that informally typed references resolve against sanitized pattern
// identifiers. The run ends at whitespace or a structural delimiter, which
// keeps parentheses, wildcards and subscripts intact.
func SanitizeCondition(condition string) string {
	if !strings.Contains(condition, Sigil) {
		return condition
	}
	var b strings.Builder
	b.Grow(len(condition))
	for i := 0; i < len(condition); {
		if condition[i] != Sigil[0] {
			b.WriteByte(condition[i])
			i++
			continue
		}
		b.WriteByte(condition[i])
		j := i + 1
		for j < len(condition) && !isReferenceDelimiter(condition[j]) {
			j++
		}
		b.WriteString(ident.Sanitize(condition[i+1 : j]))
		i = j
	}
	return b.String()
}

func isReferenceDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '[', ']', '{', '}', '*', ',', ':', '=', '<', '>', '"', '$':
		return true
	}
	return false
}
