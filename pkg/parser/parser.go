// yarex/pkg/parser/parser.go

// Package parser reads rule source text back into a structured request.
// Section boundaries and pattern values are located on the lexer's shadow,
// never on the raw text.
package parser

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"rgehrsitz/yarex/pkg/lexer"
	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

var (
	headerRegex   = regexp.MustCompile(`\brule\s+(\w+)(?:\s*:\s*([\w \t]*?))?\s*\{`)
	sectionRegex  = regexp.MustCompile(`(?m)^[ \t]*(meta|strings|condition)[ \t]*:`)
	metaLineRegex = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
	patternRegex  = regexp.MustCompile(`\$(\w*)\s*=\s*`)
	modifierRegex = regexp.MustCompile(`(\w+)(?:\(([^)]*)\))?`)
)

// Error describes source text that could not be read back.
type Error struct {
	Section string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Section != "" {
		msg = e.Section + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorType() logging.ErrorType { return logging.ErrorTypeParse }

func (e *Error) ErrorFields() map[string]interface{} {
	return map[string]interface{}{"section": e.Section}
}

// ParseFile reads a rule source file.
func ParseFile(path string) (*rule.Request, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule source %s: %w", path, err)
	}
	return ParseSource(string(src))
}

// Block is the first rule block of a source file.
type Block struct {
	Name string
	Tags []string
	// Body is the text between the block's braces and Offset its position
	// in the source.
	Body   string
	Offset int
}

// RuleBody cuts the first rule block out of src. The block ends at the
// first closing brace outside any literal or comment, so text after the
// block is never read as body. When a literal runs past every brace the
// last brace in src closes the block and scanning Body reports the open
// literal.
func RuleBody(src string) (*Block, error) {
	loc := headerRegex.FindStringSubmatchIndex(src)
	if loc == nil {
		return nil, &Error{Message: "no rule header found"}
	}
	rest := src[loc[1]:]

	sb, _ := lexer.Scan(rest)
	end := strings.IndexByte(sb.Shadow, '}')
	if end < 0 {
		end = strings.LastIndexByte(rest, '}')
	}
	if end < 0 {
		return nil, &Error{Message: "rule block is not closed"}
	}

	b := &Block{Name: src[loc[2]:loc[3]], Body: rest[:end], Offset: loc[1]}
	if loc[4] >= 0 {
		b.Tags = strings.Fields(src[loc[4]:loc[5]])
	}
	return b, nil
}

// ParseSource reads the first rule in src into a request that FromRequest
// accepts. Comments are dropped.
func ParseSource(src string) (*rule.Request, error) {
	block, err := RuleBody(src)
	if err != nil {
		return nil, err
	}
	req := &rule.Request{Name: block.Name, Tags: block.Tags}
	logging.Logger.Debug().Str("rule", req.Name).Msg("Parsing rule source")

	sb, err := lexer.Scan(block.Body)
	if err != nil {
		return nil, &Error{Message: "cannot scan rule body", Err: err}
	}
	clean := stripComments(sb)

	sections, err := splitSections(sb.Shadow)
	if err != nil {
		return nil, err
	}

	cond, ok := sections["condition"]
	if !ok {
		return nil, &Error{Section: "condition", Message: "section is missing"}
	}
	req.Condition = strings.Join(strings.Fields(clean[cond.start:cond.end]), " ")

	if m, ok := sections["meta"]; ok {
		if req.Meta, err = parseMeta(clean[m.start:m.end]); err != nil {
			return nil, err
		}
	}
	if s, ok := sections["strings"]; ok {
		if req.Strings, err = parseStrings(sb, clean, s); err != nil {
			return nil, err
		}
	}

	return req, nil
}

type section struct {
	start, end int
}

// splitSections maps each section keyword to the body range holding its
// content.
func splitSections(shadow string) (map[string]section, error) {
	matches := sectionRegex.FindAllStringSubmatchIndex(shadow, -1)
	sort.Slice(matches, func(i, j int) bool { return matches[i][0] < matches[j][0] })

	out := make(map[string]section, len(matches))
	for i, m := range matches {
		name := shadow[m[2]:m[3]]
		if _, dup := out[name]; dup {
			return nil, &Error{Section: name, Message: "section appears more than once"}
		}
		end := len(shadow)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out[name] = section{start: m[1], end: end}
	}
	return out, nil
}

// stripComments blanks comment spans, keeping newlines and offsets.
func stripComments(sb *lexer.ShadowedBody) string {
	b := []byte(sb.Source)
	for _, s := range sb.Spans {
		if s.Mode != lexer.LineComment && s.Mode != lexer.BlockComment {
			continue
		}
		for i := s.Start; i < s.End; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func parseMeta(text string) ([]rule.MetaRequest, error) {
	var out []rule.MetaRequest
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := metaLineRegex.FindStringSubmatch(line)
		if m == nil {
			return nil, &Error{Section: "meta", Message: fmt.Sprintf("cannot read line '%s'", line)}
		}
		entry, err := metaValue(m[1], strings.TrimSpace(m[2]))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func metaValue(id, raw string) (rule.MetaRequest, error) {
	switch {
	case strings.HasPrefix(raw, `"`):
		s, err := rule.UnquoteText(raw)
		if err != nil {
			return rule.MetaRequest{}, &Error{Section: "meta", Message: fmt.Sprintf("bad string for '%s'", id), Err: err}
		}
		return rule.MetaRequest{Identifier: id, Value: s, ValueType: rule.MetaString.String()}, nil
	case raw == "true" || raw == "false":
		return rule.MetaRequest{Identifier: id, Value: raw == "true", ValueType: rule.MetaBool.String()}, nil
	}
	n, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return rule.MetaRequest{}, &Error{Section: "meta", Message: fmt.Sprintf("value for '%s' is not a string, integer or boolean", id)}
	}
	return rule.MetaRequest{Identifier: id, Value: n, ValueType: rule.MetaInt.String()}, nil
}

func parseStrings(sb *lexer.ShadowedBody, clean string, sec section) ([]rule.PatternRequest, error) {
	shadow := sb.Shadow[sec.start:sec.end]
	defs := patternRegex.FindAllStringSubmatchIndex(shadow, -1)

	var out []rule.PatternRequest
	for i, d := range defs {
		id := shadow[d[2]:d[3]]
		valueAt := sec.start + d[1]
		next := sec.end
		if i+1 < len(defs) {
			next = sec.start + defs[i+1][0]
		}

		span, ok := sb.SpanAt(valueAt)
		if !ok || span.Start != valueAt {
			return nil, &Error{Section: "strings", Message: fmt.Sprintf("$%s has no text, hex or regex value", id)}
		}
		pr, err := patternValue(id, sb.Text(span), span.Mode)
		if err != nil {
			return nil, err
		}

		// Modifiers are matched on the shadow so a quoted argument holding
		// parentheses stays whole; the argument text comes from clean.
		tail := sb.Shadow[span.End:next]
		if nl := strings.IndexByte(tail, '\n'); nl >= 0 {
			tail = tail[:nl]
		}
		for _, m := range modifierRegex.FindAllStringSubmatchIndex(tail, -1) {
			mod := rule.Modifier{Keyword: tail[m[2]:m[3]]}
			if m[4] >= 0 {
				mod.Argument = clean[span.End+m[4] : span.End+m[5]]
			}
			pr.Modifiers = append(pr.Modifiers, mod)
		}
		out = append(out, pr)
	}
	return out, nil
}

func patternValue(id, lit string, mode lexer.Mode) (rule.PatternRequest, error) {
	pr := rule.PatternRequest{Identifier: id}
	var typ rule.PatternType
	switch mode {
	case lexer.Quoted:
		s, err := rule.UnquoteText(lit)
		if err != nil {
			return pr, &Error{Section: "strings", Message: fmt.Sprintf("bad text value for $%s", id), Err: err}
		}
		typ, pr.Value = rule.PatternText, s
	case lexer.BytePattern:
		typ = rule.PatternHex
		pr.Value = strings.TrimSpace(lit[1 : len(lit)-1])
	case lexer.Regex:
		typ = rule.PatternRegex
		pr.Value = lit
		if strings.HasSuffix(lit, "/") {
			pr.Value = lit[1 : len(lit)-1]
		}
	default:
		return pr, &Error{Section: "strings", Message: fmt.Sprintf("$%s has no text, hex or regex value", id)}
	}
	pr.ValueType = typ.String()
	pr.StringType = typ.String()
	return pr, nil
}
