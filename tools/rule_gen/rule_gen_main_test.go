// yarex/tools/rule_gen/rule_gen_main_test.go

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/yarex/pkg/rule"
	"rgehrsitz/yarex/pkg/validator"
)

func TestParseFlags(t *testing.T) {
	numRules, outputFile, seed := parseFlags([]string{})
	assert.Equal(t, 1000, numRules)
	assert.Equal(t, "generated_rules.json", outputFile)
	assert.Equal(t, uint64(0), seed)

	numRules, outputFile, seed = parseFlags([]string{"-rules", "500", "-output", "custom.json", "-seed", "42"})
	assert.Equal(t, 500, numRules)
	assert.Equal(t, "custom.json", outputFile)
	assert.Equal(t, uint64(42), seed)
}

func TestGenerateRuleset(t *testing.T) {
	ruleset := generateRuleset(gofakeit.New(1), 10)

	assert.Len(t, ruleset.Rules, 10)
	for i, req := range ruleset.Rules {
		assert.Equal(t, fmt.Sprintf("rule_%d", i+1), req.Name)
		assert.NotEmpty(t, req.Strings)
		assert.NotEmpty(t, req.Condition)
	}
}

func TestGenerateRulesetIsDeterministic(t *testing.T) {
	assert.Equal(t, generateRuleset(gofakeit.New(99), 5), generateRuleset(gofakeit.New(99), 5))
}

// Every generated request builds and passes lint, so a generated ruleset
// only exercises the engine's success path.
func TestGeneratedRulesAreClean(t *testing.T) {
	f := gofakeit.New(2024)
	for i := 0; i < 200; i++ {
		req := generateRule(f, i)
		r, err := rule.FromRequest(&req)
		require.NoError(t, err, "request %d: %+v", i, req)
		assert.Empty(t, validator.Lint(r), "rule %d:\n%s", i, r.Render())
	}
}

// unescapedSlash reports the offset of the first '/' not preceded by a
// backslash escape, or -1.
func unescapedSlash(body string) int {
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '/':
			return i
		}
	}
	return -1
}

func TestRegexBodiesEscapeSlashes(t *testing.T) {
	for _, body := range regexBodies {
		assert.Equal(t, -1, unescapedSlash(body), body)
	}

	f := gofakeit.New(99)
	for i := 0; i < 200; i++ {
		req := generateRule(f, i)
		for _, s := range req.Strings {
			if s.ValueType == rule.PatternRegex.String() {
				assert.Equal(t, -1, unescapedSlash(s.Value), "rule %d $%s: %s", i, s.Identifier, s.Value)
			}
		}
	}
}

func TestGenerateCondition(t *testing.T) {
	f := gofakeit.New(5)
	ids := []string{"s0", "s1", "s2"}
	for i := 0; i < 50; i++ {
		cond := generateCondition(f, ids)
		r := rule.New("c", nil, nil, nil, cond)
		if cond == "any of them" || cond == "all of ($s*)" {
			continue
		}
		assert.ElementsMatch(t, ids, r.ReferenceNames(), cond)
	}
}

func TestWriteRulesetToFile(t *testing.T) {
	ruleset := Ruleset{Rules: []rule.Request{{
		Name:      "test_rule",
		Strings:   []rule.PatternRequest{{Identifier: "s0", Value: "abc"}},
		Condition: "$s0",
	}}}

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, writeRulesetToFile(ruleset, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Ruleset
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, ruleset, decoded)

	assert.Error(t, writeRulesetToFile(ruleset, filepath.Join(t.TempDir(), "missing", "rules.json")))
}
