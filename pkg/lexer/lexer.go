// yarex/pkg/lexer/lexer.go

// Package lexer classifies every byte of a rule body into a lexical context
// and produces a shadow copy in which quoted strings, regular expressions,
// byte patterns and comments are masked. Structural matching (section
// keywords, braces) runs against the shadow so delimiters inside literals
// never count.
package lexer

import (
	"fmt"
	"strings"

	"rgehrsitz/yarex/pkg/logging"
)

// Mode is the lexical context a byte was read in.
type Mode int

const (
	Plain Mode = iota
	Quoted
	Regex
	BytePattern
	LineComment
	BlockComment
)

func (m Mode) String() string {
	switch m {
	case Plain:
		return "plain"
	case Quoted:
		return "quoted string"
	case Regex:
		return "regular expression"
	case BytePattern:
		return "byte pattern"
	case LineComment:
		return "line comment"
	case BlockComment:
		return "block comment"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Marker is the byte that replaces text read in mode m. Plain has none.
// Markers are single ASCII bytes so the shadow keeps the body's length.
func (m Mode) Marker() byte {
	switch m {
	case Quoted:
		return '#'
	case Regex:
		return '~'
	case BytePattern:
		return '^'
	case LineComment:
		return '@'
	case BlockComment:
		return '%'
	default:
		return 0
	}
}

// Span is a half-open byte range [Start, End) of the body read in one
// non-plain mode, delimiters included.
type Span struct {
	Mode  Mode
	Start int
	End   int
}

// ShadowedBody is the result of one scan.
type ShadowedBody struct {
	Source string
	// Shadow has the same length as Source. Newlines are never masked.
	Shadow        string
	CommentLines  []string
	CommentBlocks []string
	Spans         []Span
}

// Text returns the source text covered by s.
func (b *ShadowedBody) Text(s Span) string {
	return b.Source[s.Start:s.End]
}

// SpanAt returns the span containing offset, if any.
func (b *ShadowedBody) SpanAt(offset int) (Span, bool) {
	for _, s := range b.Spans {
		if offset >= s.Start && offset < s.End {
			return s, true
		}
		if s.Start > offset {
			break
		}
	}
	return Span{}, false
}

// UnterminatedLiteralError reports a literal or block comment still open
// at the end of the body. Line and Column are 1-based and point at the
// opening delimiter.
type UnterminatedLiteralError struct {
	Mode   Mode
	Offset int
	Line   int
	Column int
}

func (e *UnterminatedLiteralError) Error() string {
	return fmt.Sprintf("unterminated %s starting at line %d, column %d", e.Mode, e.Line, e.Column)
}

func (e *UnterminatedLiteralError) ErrorType() logging.ErrorType {
	return logging.ErrorTypeLex
}

func (e *UnterminatedLiteralError) ErrorFields() map[string]interface{} {
	return map[string]interface{}{
		"mode":   e.Mode.String(),
		"offset": e.Offset,
		"line":   e.Line,
		"column": e.Column,
	}
}

// state is the scanner's per-call context.
type state struct {
	mode      Mode
	start     int
	escape    bool
	multichar bool
	hexSeen   int
}

// Scan reads body once, left to right, and returns its shadow. The body is
// always returned; the error is non-nil only when a quoted string, regular
// expression, byte pattern or block comment is left open. A line comment
// may run to the end of the body.
func Scan(body string) (*ShadowedBody, error) {
	out := &ShadowedBody{Source: body}
	shadow := []byte(body)
	st := state{}

	mask := func(i int) {
		if shadow[i] != '\n' {
			shadow[i] = st.mode.Marker()
		}
	}
	open := func(m Mode, i int) {
		st = state{mode: m, start: i}
		mask(i)
	}
	closeAt := func(end int) {
		out.Spans = append(out.Spans, Span{Mode: st.mode, Start: st.start, End: end})
		switch st.mode {
		case LineComment:
			out.CommentLines = append(out.CommentLines, strings.TrimSpace(body[st.start+2:end]))
		case BlockComment:
			out.CommentBlocks = append(out.CommentBlocks, strings.TrimSpace(body[st.start+2:end-2]))
		}
		st = state{}
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch st.mode {
		case Plain:
			switch c {
			case '"':
				open(Quoted, i)
			case '{':
				open(BytePattern, i)
			case '/':
				next := byteAt(body, i+1)
				switch next {
				case '/':
					open(LineComment, i)
					i++
					mask(i)
				case '*':
					open(BlockComment, i)
					i++
					mask(i)
				default:
					open(Regex, i)
				}
			}

		case Quoted:
			mask(i)
			if st.escape {
				if !st.multichar {
					if c == 'x' {
						st.multichar = true
						st.hexSeen = 0
					} else {
						st.escape = false
					}
					continue
				}
				if isHexDigit(c) {
					st.hexSeen++
					if st.hexSeen == 2 {
						st.escape, st.multichar = false, false
					}
					continue
				}
				st.escape, st.multichar = false, false
			}
			switch c {
			case '\\':
				st.escape = true
			case '"':
				closeAt(i + 1)
			}

		case Regex:
			mask(i)
			if st.escape {
				st.escape = false
				continue
			}
			switch c {
			case '\\':
				st.escape = true
			case '/':
				j := i + 1
				for j < len(body) && (body[j] == 'i' || body[j] == 's') {
					j++
				}
				if j == len(body) || isSeparator(body[j]) {
					for k := i + 1; k < j; k++ {
						mask(k)
					}
					closeAt(j)
					i = j - 1
				}
			}

		case BytePattern:
			mask(i)
			if c == '}' && (i+1 == len(body) || isSeparator(body[i+1])) {
				closeAt(i + 1)
			}

		case LineComment:
			if c == '\n' {
				closeAt(i)
				continue
			}
			mask(i)

		case BlockComment:
			mask(i)
			if c == '/' && i-1 >= st.start+2 && body[i-1] == '*' {
				closeAt(i + 1)
			}
		}
	}

	out.Shadow = string(shadow)

	switch st.mode {
	case Plain:
		return out, nil
	case LineComment:
		closeAt(len(body))
		return out, nil
	}

	out.Spans = append(out.Spans, Span{Mode: st.mode, Start: st.start, End: len(body)})
	line, col := position(body, st.start)
	err := &UnterminatedLiteralError{Mode: st.mode, Offset: st.start, Line: line, Column: col}
	logging.Logger.Debug().Str("mode", st.mode.String()).Int("line", line).Int("column", col).Msg("Scan ended inside a literal")
	return out, err
}

func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// position converts a byte offset into a 1-based line and column.
func position(s string, offset int) (int, int) {
	line := 1 + strings.Count(s[:offset], "\n")
	col := offset + 1
	if nl := strings.LastIndexByte(s[:offset], '\n'); nl >= 0 {
		col = offset - nl
	}
	return line, col
}
