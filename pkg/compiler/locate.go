// yarex/pkg/compiler/locate.go

package compiler

import (
	"fmt"
	"strings"

	"rgehrsitz/yarex/pkg/rule"
)

// Location is the failing token of a condition. Column and ColumnRange are
// 1-based columns on the condition line of the normal rendering;
// ColumnRange is Column plus the token length.
type Location struct {
	Index       int
	Column      int
	ColumnRange int
	Word        string
}

// Locate finds the condition token an engine error points at. firstLine is
// the line the engine reported for the normal rendering and secondLine the
// line it reported for the token-per-line rendering; their difference is
// the token index. A failing first token is reported at the column it
// starts on, indent plus one, rather than one column further right as the
// indent plus joined length plus two formula would give.
func Locate(condition string, firstLine, secondLine int) (Location, error) {
	tokens := strings.Split(strings.ReplaceAll(condition, " ", "\n"), "\n")
	idx := secondLine - firstLine
	if idx < 0 || idx >= len(tokens) {
		return Location{}, fmt.Errorf("token index %d is outside the condition's %d tokens", idx, len(tokens))
	}
	word := tokens[idx]
	if word == "" {
		return Location{}, fmt.Errorf("token index %d is an empty token", idx)
	}

	// The first token has no separating space before it.
	column := rule.ConditionIndentLength + 1
	if idx > 0 {
		column = rule.ConditionIndentLength + len(strings.Join(tokens[:idx], " ")) + 2
	}
	return Location{
		Index:       idx,
		Column:      column,
		ColumnRange: column + len(word),
		Word:        word,
	}, nil
}
