// yarex/pkg/rule/text.go

package rule

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789abcdef"

// QuoteText renders s as a double-quoted YARA text literal. Quotes,
// backslashes, tabs and newlines use their short escapes; any other byte
// outside printable ASCII becomes \xHH.
func QuoteText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c > 0x7e:
			b.WriteString(`\x`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// UnquoteText is the inverse of QuoteText. It accepts the literal with or
// without its surrounding quotes.
func UnquoteText(lit string) (string, error) {
	if len(lit) >= 2 && lit[0] == '"' && lit[len(lit)-1] == '"' {
		lit = lit[1 : len(lit)-1]
	}
	var b strings.Builder
	b.Grow(len(lit))
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(lit) {
			return "", fmt.Errorf("dangling escape at offset %d", i)
		}
		i++
		switch lit[i] {
		case '"', '\\':
			b.WriteByte(lit[i])
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'x':
			if i+2 >= len(lit) {
				return "", fmt.Errorf("short hex escape at offset %d", i-1)
			}
			hi, okHi := unhex(lit[i+1])
			lo, okLo := unhex(lit[i+2])
			if !okHi || !okLo {
				return "", fmt.Errorf("invalid hex escape at offset %d", i-1)
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		default:
			return "", fmt.Errorf("unknown escape '\\%c' at offset %d", lit[i], i-1)
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
