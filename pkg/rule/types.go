// yarex/pkg/rule/types.go

package rule

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MetaType is the scalar kind of a metadata value.
type MetaType int

const (
	MetaString MetaType = iota
	MetaInt
	MetaBool
)

func (t MetaType) String() string {
	switch t {
	case MetaString:
		return "string"
	case MetaInt:
		return "int"
	case MetaBool:
		return "bool"
	default:
		return fmt.Sprintf("MetaType(%d)", int(t))
	}
}

// ParseMetaType accepts the spellings API payloads use for metadata types.
func ParseMetaType(s string) (MetaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return MetaString, nil
	case "int", "integer", "number":
		return MetaInt, nil
	case "bool", "boolean":
		return MetaBool, nil
	default:
		return 0, fmt.Errorf("unknown metadata type '%s'", s)
	}
}

// PatternType is the literal kind of a pattern: quoted text, a hex byte
// sequence or a regular expression.
type PatternType int

const (
	PatternText PatternType = iota
	PatternHex
	PatternRegex
)

func (t PatternType) String() string {
	switch t {
	case PatternText:
		return "text"
	case PatternHex:
		return "hex"
	case PatternRegex:
		return "regex"
	default:
		return fmt.Sprintf("PatternType(%d)", int(t))
	}
}

func ParsePatternType(s string) (PatternType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "str":
		return PatternText, nil
	case "hex", "bytes":
		return PatternHex, nil
	case "regex", "regexp", "re":
		return PatternRegex, nil
	default:
		return 0, fmt.Errorf("unknown pattern type '%s'", s)
	}
}

// Modifier keywords accepted after a pattern value.
const (
	ModNocase     = "nocase"
	ModWide       = "wide"
	ModASCII      = "ascii"
	ModXor        = "xor"
	ModBase64     = "base64"
	ModBase64Wide = "base64wide"
	ModFullword   = "fullword"
	ModPrivate    = "private"
)

var knownModifiers = map[string]bool{
	ModNocase: true, ModWide: true, ModASCII: true, ModXor: true,
	ModBase64: true, ModBase64Wide: true, ModFullword: true, ModPrivate: true,
}

// IsKnownModifier reports whether keyword is a pattern modifier.
func IsKnownModifier(keyword string) bool {
	return knownModifiers[keyword]
}

// Modifier is one pattern modifier, optionally with an argument as in
// xor(0x01-0xff) or base64("alphabet").
type Modifier struct {
	Keyword  string `json:"keyword" yaml:"keyword"`
	Argument string `json:"argument,omitempty" yaml:"argument,omitempty"`
}

func (m Modifier) String() string {
	if m.Argument == "" {
		return m.Keyword
	}
	return m.Keyword + "(" + m.Argument + ")"
}

// ParseModifier reads the rendered form of a modifier.
func ParseModifier(s string) Modifier {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Modifier{Keyword: s}
	}
	return Modifier{Keyword: s[:open], Argument: s[open+1 : len(s)-1]}
}

// UnmarshalJSON accepts either "nocase" or {"keyword": "xor", "argument": "0x01-0xff"}.
func (m *Modifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = ParseModifier(s)
		return nil
	}
	type plain Modifier
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("modifier must be a string or object: %w", err)
	}
	*m = Modifier(p)
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML payloads.
func (m *Modifier) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = ParseModifier(node.Value)
		return nil
	}
	type plain Modifier
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("modifier must be a string or mapping: %w", err)
	}
	*m = Modifier(p)
	return nil
}
