// yarex/pkg/ident/ident.go

// Package ident normalizes free-form text into YARA identifiers.
package ident

import "strings"

// Keywords reserved by the YARA grammar. A rule name, tag or metadata key
// equal to one of these does not compile.
var Keywords = map[string]struct{}{
	"all": {}, "and": {}, "any": {}, "ascii": {}, "at": {}, "base64": {},
	"base64wide": {}, "condition": {}, "contains": {}, "defined": {},
	"endswith": {}, "entrypoint": {}, "false": {}, "filesize": {}, "for": {},
	"fullword": {}, "global": {}, "icontains": {}, "iendswith": {},
	"iequals": {}, "import": {}, "in": {}, "include": {}, "int16": {},
	"int16be": {}, "int32": {}, "int32be": {}, "int8": {}, "int8be": {},
	"istartswith": {}, "matches": {}, "meta": {}, "nocase": {}, "none": {},
	"not": {}, "of": {}, "or": {}, "private": {}, "rule": {},
	"startswith": {}, "strings": {}, "them": {}, "true": {}, "uint16": {},
	"uint16be": {}, "uint32": {}, "uint32be": {}, "uint8": {}, "uint8be": {},
	"wide": {}, "xor": {},
}

// Sanitize drops every byte outside [A-Za-z0-9_]. It never fails; input
// with no valid bytes yields the empty string.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if IsWordByte(raw[i]) {
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// SanitizeIdentifier is Sanitize plus the guards that make the result a
// valid rule-level identifier: a leading digit gets an underscore prefix and
// a reserved keyword gets an underscore suffix. Empty stays empty.
func SanitizeIdentifier(raw string) string {
	s := Sanitize(raw)
	if s == "" {
		return s
	}
	if isDigit(s[0]) {
		s = "_" + s
	}
	if IsKeyword(s) {
		s += "_"
	}
	return s
}

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool {
	_, ok := Keywords[s]
	return ok
}

// IsValid reports whether s already satisfies the identifier grammar.
func IsValid(s string) bool {
	if s == "" || isDigit(s[0]) || IsKeyword(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsWordByte(s[i]) {
			return false
		}
	}
	return true
}

// IsWordByte reports whether c belongs to [A-Za-z0-9_].
func IsWordByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
