// yarex/pkg/validator/validator_test.go

package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

func pattern(t *testing.T, id string, typ rule.PatternType, mods ...string) rule.PatternEntry {
	t.Helper()
	var modifiers []rule.Modifier
	for _, m := range mods {
		modifiers = append(modifiers, rule.ParseModifier(m))
	}
	p, err := rule.NewPattern(id, "value", typ, typ, modifiers...)
	require.NoError(t, err)
	return p
}

func kinds(issues []Issue) []IssueKind {
	var out []IssueKind
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func TestLint(t *testing.T) {
	text, hex, regex := rule.PatternText, rule.PatternHex, rule.PatternRegex

	tests := []struct {
		name      string
		ruleName  string
		patterns  []rule.PatternEntry
		condition string
		expected  []IssueKind
		field     string
	}{
		{
			name:     "Clean rule",
			ruleName: "clean",
			patterns: []rule.PatternEntry{
				pattern(t, "a", text, "nocase", "wide"),
				pattern(t, "h", hex, "private"),
				pattern(t, "r", regex, "nocase", "fullword"),
			},
			condition: "$a and $h and #r > 1",
		},
		{
			name:      "Empty name",
			ruleName:  "!!!",
			condition: "true",
			expected:  []IssueKind{EmptyName},
			field:     "name",
		},
		{
			name:     "Empty condition",
			ruleName: "r",
			patterns: []rule.PatternEntry{pattern(t, "a", text)},
			expected: []IssueKind{EmptyCondition},
			field:    "condition",
		},
		{
			name:      "Duplicate pattern",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a", text), pattern(t, "a", hex)},
			condition: "$a",
			expected:  []IssueKind{DuplicatePattern},
			field:     "strings[1].identifier",
		},
		{
			name:      "Undeclared reference",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a", text)},
			condition: "$a and @b[1] > 10",
			expected:  []IssueKind{UndeclaredReference},
			field:     "condition",
		},
		{
			name:      "Unreferenced pattern",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a", text), pattern(t, "b", text)},
			condition: "$a",
			expected:  []IssueKind{UnreferencedPattern},
			field:     "strings[1]",
		},
		{
			name:      "Wildcard covers patterns",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a1", text), pattern(t, "a2", text)},
			condition: "any of ($a*)",
		},
		{
			name:      "Them covers patterns",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a", text), pattern(t, "b", hex)},
			condition: "all of them",
		},
		{
			name:      "Modifier on hex",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "h", hex, "xor")},
			condition: "$h",
			expected:  []IssueKind{IllegalModifier},
			field:     "strings[0].modifiers",
		},
		{
			name:      "Base64 on regex",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "r", regex, "base64")},
			condition: "$r",
			expected:  []IssueKind{IllegalModifier},
			field:     "strings[0].modifiers",
		},
		{
			name:      "Nocase with xor",
			ruleName:  "r",
			patterns:  []rule.PatternEntry{pattern(t, "a", text, "nocase", "xor(0x01-0xff)")},
			condition: "$a",
			expected:  []IssueKind{IncompatibleModifiers},
			field:     "strings[0].modifiers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule.New(tt.ruleName, nil, nil, tt.patterns, tt.condition)
			issues := Lint(r)
			assert.Equal(t, tt.expected, kinds(issues))
			if len(tt.expected) > 0 {
				assert.Equal(t, tt.field, issues[0].Field)
			}
		})
	}
}

func TestLintReportsEveryIssue(t *testing.T) {
	r := rule.New("r", nil, nil, []rule.PatternEntry{
		pattern(t, "a", rule.PatternText),
		pattern(t, "a", rule.PatternHex, "wide"),
		pattern(t, "c", rule.PatternText),
	}, "$a and $missing")

	assert.Equal(t, []IssueKind{
		DuplicatePattern,
		IllegalModifier,
		UndeclaredReference,
		UnreferencedPattern,
	}, kinds(Lint(r)))
}

func TestValidateRule(t *testing.T) {
	ok := rule.New("ok", nil, nil, []rule.PatternEntry{pattern(t, "a", rule.PatternText)}, "$a")
	assert.NoError(t, ValidateRule(ok))

	bad := rule.New("bad", nil, nil, []rule.PatternEntry{pattern(t, "a", rule.PatternText)}, "$b")
	err := ValidateRule(bad)
	require.Error(t, err)

	var lintErr *LintError
	require.True(t, errors.As(err, &lintErr))
	assert.Equal(t, "bad", lintErr.Rule)
	assert.Len(t, lintErr.Issues, 2)
	assert.Contains(t, err.Error(), "undefined string identifier '$b'")
	assert.Contains(t, err.Error(), "unreferenced string '$a'")

	var f logging.Fielder
	require.True(t, errors.As(err, &f))
	assert.Equal(t, logging.ErrorTypeValidation, f.ErrorType())
	assert.Equal(t, []string{"undeclared_reference", "unreferenced_pattern"}, f.ErrorFields()["issues"])
}
