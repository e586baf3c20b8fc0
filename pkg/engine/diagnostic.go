// yarex/pkg/engine/diagnostic.go

package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one line of compiler output.
type Diagnostic struct {
	Line    int
	Message string
	Warning bool
	// Rule is set when the engine named the rule it was compiling.
	Rule string
	Raw  string
}

var diagnosticFormats = []*regexp.Regexp{
	// error: rule "name" in file.yar(8): message
	regexp.MustCompile(`^(error|warning): rule "(\w*)" in .*\((\d+)\): (.*)$`),
	// file.yar(8): error: message
	regexp.MustCompile(`^.*\((\d+)\): (error|warning): (.*)$`),
	// line 8: message
	regexp.MustCompile(`^line (\d+): (.*)$`),
}

// ParseDiagnostic extracts the line number and reason from one line of
// engine output. It is the only place that knows the engine's message
// formats.
func ParseDiagnostic(line string) (Diagnostic, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Diagnostic{}, false
	}

	if m := diagnosticFormats[0].FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[3])
		return Diagnostic{Line: n, Message: m[4], Warning: m[1] == "warning", Rule: m[2], Raw: line}, true
	}
	if m := diagnosticFormats[1].FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Diagnostic{Line: n, Message: m[3], Warning: m[2] == "warning", Raw: line}, true
	}
	if m := diagnosticFormats[2].FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Diagnostic{Line: n, Message: m[2], Raw: line}, true
	}
	return Diagnostic{}, false
}

// ParseDiagnostics reads every recognisable diagnostic out of output.
func ParseDiagnostics(output string) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		if d, ok := ParseDiagnostic(line); ok {
			out = append(out, d)
		}
	}
	return out
}

// AsSyntaxError turns a diagnostic into the error the engine returns.
func (d Diagnostic) AsSyntaxError() *SyntaxError {
	return &SyntaxError{Line: d.Line, Message: d.Message, Raw: d.Raw, Warning: d.Warning}
}
