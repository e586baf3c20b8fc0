// yarex/pkg/validator/validator.go

// Package validator runs the checks the matching engine would otherwise
// reject a rule for, before the rule is ever submitted.
package validator

import (
	"fmt"
	"strings"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

type IssueKind string

const (
	EmptyName             IssueKind = "empty_name"
	EmptyCondition        IssueKind = "empty_condition"
	DuplicatePattern      IssueKind = "duplicate_pattern"
	UndeclaredReference   IssueKind = "undeclared_reference"
	UnreferencedPattern   IssueKind = "unreferenced_pattern"
	IllegalModifier       IssueKind = "illegal_modifier"
	IncompatibleModifiers IssueKind = "incompatible_modifiers"
)

// Issue is one problem found in a rule. Field names the offending part in
// the same form request validation uses, e.g. strings[2].modifiers.
type Issue struct {
	Kind    IssueKind
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// LintError carries every issue found by ValidateRule.
type LintError struct {
	Rule   string
	Issues []Issue
}

func (e *LintError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return fmt.Sprintf("rule '%s' has %d issue(s): %s", e.Rule, len(e.Issues), strings.Join(msgs, "; "))
}

func (e *LintError) ErrorType() logging.ErrorType {
	return logging.ErrorTypeValidation
}

func (e *LintError) ErrorFields() map[string]interface{} {
	kinds := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		kinds[i] = string(issue.Kind)
	}
	return map[string]interface{}{"rule": e.Rule, "issues": kinds}
}

// Modifiers a pattern type accepts. Text patterns accept every modifier.
var allowedModifiers = map[rule.PatternType]map[string]bool{
	rule.PatternHex: {rule.ModPrivate: true},
	rule.PatternRegex: {
		rule.ModNocase: true, rule.ModWide: true, rule.ModASCII: true,
		rule.ModFullword: true, rule.ModPrivate: true,
	},
}

// Modifier pairs the engine refuses on the same pattern.
var exclusiveModifiers = [][2]string{
	{rule.ModNocase, rule.ModXor},
	{rule.ModNocase, rule.ModBase64},
	{rule.ModNocase, rule.ModBase64Wide},
	{rule.ModXor, rule.ModBase64},
	{rule.ModXor, rule.ModBase64Wide},
	{rule.ModFullword, rule.ModBase64},
	{rule.ModFullword, rule.ModBase64Wide},
}

// ValidateRule returns a *LintError when Lint finds anything.
func ValidateRule(r *rule.Rule) error {
	issues := Lint(r)
	if len(issues) == 0 {
		return nil
	}
	err := &LintError{Rule: r.Name(), Issues: issues}
	logging.Logger.Debug().Str("rule", r.Name()).Int("issues", len(issues)).Msg("Rule failed lint")
	return err
}

// Lint lists every issue in r, in the order name, patterns, condition.
func Lint(r *rule.Rule) []Issue {
	var issues []Issue
	if r.Name() == "" {
		issues = append(issues, Issue{Kind: EmptyName, Field: "name", Message: "rule has no identifier"})
	}

	patterns := r.Patterns()
	declared := make(map[string]bool, len(patterns))
	for i, p := range patterns {
		field := fmt.Sprintf("strings[%d]", i)
		if declared[p.Identifier()] {
			issues = append(issues, Issue{
				Kind:    DuplicatePattern,
				Field:   field + ".identifier",
				Message: fmt.Sprintf("duplicated string identifier '%s'", p.Ref()),
			})
		}
		declared[p.Identifier()] = true
		issues = append(issues, lintModifiers(field, p)...)
	}

	if strings.TrimSpace(r.Condition()) == "" {
		issues = append(issues, Issue{Kind: EmptyCondition, Field: "condition", Message: "rule has no condition"})
		return issues
	}

	for _, name := range r.ReferenceNames() {
		if !declared[name] {
			issues = append(issues, Issue{
				Kind:    UndeclaredReference,
				Field:   "condition",
				Message: fmt.Sprintf("undefined string identifier '%s%s'", rule.Sigil, name),
			})
		}
	}

	referenced := make(map[string]bool)
	for _, p := range r.ReferencedPatterns() {
		referenced[p.Identifier()] = true
	}
	for i, p := range patterns {
		if !referenced[p.Identifier()] {
			issues = append(issues, Issue{
				Kind:    UnreferencedPattern,
				Field:   fmt.Sprintf("strings[%d]", i),
				Message: fmt.Sprintf("unreferenced string '%s'", p.Ref()),
			})
		}
	}
	return issues
}

func lintModifiers(field string, p rule.PatternEntry) []Issue {
	var issues []Issue
	present := make(map[string]bool)
	allowed, restricted := allowedModifiers[p.StringType()]
	for _, m := range p.Modifiers() {
		present[m.Keyword] = true
		if restricted && !allowed[m.Keyword] {
			issues = append(issues, Issue{
				Kind:    IllegalModifier,
				Field:   field + ".modifiers",
				Message: fmt.Sprintf("modifier '%s' not allowed on %s string '%s'", m.Keyword, p.StringType(), p.Ref()),
			})
		}
	}
	for _, pair := range exclusiveModifiers {
		if present[pair[0]] && present[pair[1]] {
			issues = append(issues, Issue{
				Kind:    IncompatibleModifiers,
				Field:   field + ".modifiers",
				Message: fmt.Sprintf("modifiers '%s' and '%s' cannot be combined on '%s'", pair[0], pair[1], p.Ref()),
			})
		}
	}
	return issues
}
