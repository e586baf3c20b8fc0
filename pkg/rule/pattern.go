// yarex/pkg/rule/pattern.go

package rule

import (
	"fmt"
	"regexp"
	"strings"

	"rgehrsitz/yarex/pkg/ident"
)

// Sigil prefixes a pattern reference inside a condition.
const Sigil = "$"

// A regex value already carrying its delimiters, e.g. /abc/is.
var delimitedRegex = regexp.MustCompile(`^/.*/[is]*$`)

// PatternEntry is one named pattern of the strings section. The identifier
// is held without its sigil.
type PatternEntry struct {
	identifier string
	value      string
	valueType  PatternType
	stringType PatternType
	modifiers  []Modifier
}

// NewPattern builds a pattern entry. A leading sigil on identifier is
// accepted and dropped before sanitizing.
func NewPattern(identifier, value string, valueType, stringType PatternType, modifiers ...Modifier) (PatternEntry, error) {
	id := ident.Sanitize(strings.TrimPrefix(strings.TrimSpace(identifier), Sigil))
	if id == "" {
		return PatternEntry{}, fmt.Errorf("pattern identifier '%s' has no valid characters", identifier)
	}
	mods := make([]Modifier, 0, len(modifiers))
	for _, m := range modifiers {
		m.Keyword = strings.ToLower(strings.TrimSpace(m.Keyword))
		if !IsKnownModifier(m.Keyword) {
			return PatternEntry{}, fmt.Errorf("unknown modifier '%s'", m.Keyword)
		}
		mods = append(mods, m)
	}
	return PatternEntry{
		identifier: id,
		value:      value,
		valueType:  valueType,
		stringType: stringType,
		modifiers:  mods,
	}, nil
}

// TextPattern is shorthand for an unmodified text pattern.
func TextPattern(identifier, value string) (PatternEntry, error) {
	return NewPattern(identifier, value, PatternText, PatternText)
}

func (p PatternEntry) Identifier() string { return p.identifier }
func (p PatternEntry) Ref() string { return Sigil + p.identifier }
func (p PatternEntry) Value() string { return p.value }
func (p PatternEntry) ValueType() PatternType { return p.valueType }
func (p PatternEntry) StringType() PatternType { return p.stringType }

func (p PatternEntry) Modifiers() []Modifier {
	return append([]Modifier(nil), p.modifiers...)
}

// String renders the entry as it appears inside the strings section.
func (p PatternEntry) String() string {
	var b strings.Builder
	b.WriteString(p.Ref())
	b.WriteString(" = ")
	b.WriteString(p.literal())
	for _, m := range p.modifiers {
		b.WriteByte(' ')
		b.WriteString(m.String())
	}
	return b.String()
}

func (p PatternEntry) literal() string {
	switch p.stringType {
	case PatternHex:
		v := strings.TrimSpace(p.value)
		if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
			return v
		}
		return "{ " + v + " }"
	case PatternRegex:
		if delimitedRegex.MatchString(p.value) {
			return p.value
		}
		return "/" + p.value + "/"
	default:
		return QuoteText(p.value)
	}
}
