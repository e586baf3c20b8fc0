// yarex/pkg/rule/references.go

package rule

import (
	"regexp"
	"strings"

	"rgehrsitz/yarex/pkg/ident"
)

var (
	// Sigil followed by word characters, as matched by the positional pairing.
	sigilToken = regexp.MustCompile(`\$\w*`)

	// Any pattern reference: $name, #name (count), @name (offset), !name
	// (length), optionally ending in a wildcard.
	referenceToken = regexp.MustCompile(`[$#@!](\w*)(\*?)`)

	themKeyword = regexp.MustCompile(`\bthem\b`)
)

// ReferencedPatterns returns the declared patterns the condition refers to,
// in declaration order. A pattern is referenced when its identifier appears
// after any reference sigil, when a wildcard reference ($a*) covers it, or
// when the condition uses `them`. Position in the condition is irrelevant.
func (r *Rule) ReferencedPatterns() []PatternEntry {
	if len(r.patterns) == 0 {
		return nil
	}
	if themKeyword.MatchString(r.condition) {
		return r.Patterns()
	}

	exact := make(map[string]bool)
	var prefixes []string
	for _, m := range referenceToken.FindAllStringSubmatch(r.condition, -1) {
		if m[2] == "*" {
			prefixes = append(prefixes, m[1])
			continue
		}
		if m[1] != "" {
			exact[m[1]] = true
		}
	}

	var out []PatternEntry
	for _, p := range r.patterns {
		if exact[p.identifier] || hasAnyPrefix(p.identifier, prefixes) {
			out = append(out, p)
		}
	}
	return out
}

// ReferencedPatternsPositional pairs the Nth sigil token of the condition
// with the Nth declared pattern and keeps the pattern only when the two
// agree. Conditions that reference patterns out of declaration order, or
// skip one, lose patterns under this pairing; it exists for parity with
// rule sets built against that behaviour.
func (r *Rule) ReferencedPatternsPositional() []PatternEntry {
	tokens := sigilToken.FindAllString(r.condition, -1)
	var out []PatternEntry
	for i := 0; i < len(tokens) && i < len(r.patterns); i++ {
		if ident.Sanitize(tokens[i][1:]) == r.patterns[i].identifier {
			out = append(out, r.patterns[i])
		}
	}
	return out
}

// ReferenceNames lists the distinct non-wildcard identifiers referenced by
// the condition, in order of first appearance.
func (r *Rule) ReferenceNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range referenceToken.FindAllStringSubmatch(r.condition, -1) {
		if m[2] == "*" || m[1] == "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
