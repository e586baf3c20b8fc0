// yarex/pkg/engine/cli.go

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

// compiledMagic opens every file yarac writes.
var compiledMagic = []byte("YARA")

// CompiledRules is an artifact produced by yarac.
type CompiledRules struct {
	data []byte
}

// NewCompiledRules wraps compiled bytes, checking the file magic.
func NewCompiledRules(data []byte) (*CompiledRules, error) {
	if !bytes.HasPrefix(data, compiledMagic) {
		return nil, fmt.Errorf("not a compiled rules file")
	}
	return &CompiledRules{data: data}, nil
}

func (c *CompiledRules) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.data)
	return int64(n), err
}

func (c *CompiledRules) Bytes() []byte {
	return append([]byte(nil), c.data...)
}

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// CLI drives the yarac and yara command-line tools.
type CLI struct {
	YaracPath string
	YaraPath  string
	// TempDir holds the scratch files each call writes; empty means the
	// system default.
	TempDir string

	run runFunc
}

func NewCLI(yaracPath, yaraPath string) *CLI {
	return &CLI{YaracPath: yaracPath, YaraPath: yaraPath, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// notStarted reports whether err means the binary could not be run at all,
// as opposed to running and exiting non-zero.
func notStarted(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Compile writes source to a scratch directory and runs yarac on it.
func (c *CLI) Compile(ctx context.Context, source string, opts CompileOptions) (*CompileResult, error) {
	dir, err := os.MkdirTemp(c.TempDir, "yarex-compile-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "rule.yar")
	outPath := filepath.Join(dir, "rule.bin")
	if err := os.WriteFile(srcPath, []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("failed to write rule source: %w", err)
	}

	args := []string{srcPath, outPath}
	if opts.ErrorOnWarning {
		args = append([]string{"--fail-on-warnings"}, args...)
	}

	runCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	logging.Logger.Debug().Str("yarac", c.YaracPath).Bool("errorOnWarning", opts.ErrorOnWarning).Msg("Compiling rule source")
	_, stderr, runErr := c.run(runCtx, c.YaracPath, args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diags := ParseDiagnostics(string(stderr))
	if runErr != nil {
		if notStarted(runErr) {
			return nil, fmt.Errorf("failed to run %s: %w", c.YaracPath, runErr)
		}
		return nil, compileFailure(diags, opts.ErrorOnWarning, string(stderr))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("compiler produced no artifact: %w", err)
	}
	artifact, err := NewCompiledRules(data)
	if err != nil {
		return nil, err
	}

	result := &CompileResult{Artifact: artifact}
	for _, d := range diags {
		if d.Warning {
			result.Warnings = append(result.Warnings, d)
		}
	}
	return result, nil
}

// compileFailure picks the diagnostic that explains a failed compile: the
// first error, or the first warning when warnings are fatal.
func compileFailure(diags []Diagnostic, errorOnWarning bool, stderr string) error {
	for _, d := range diags {
		if !d.Warning {
			return d.AsSyntaxError()
		}
	}
	if errorOnWarning && len(diags) > 0 {
		return diags[0].AsSyntaxError()
	}
	return fmt.Errorf("compiler failed without a diagnostic: %s", strings.TrimSpace(stderr))
}

// Load reads a compiled rules file.
func (c *CLI) Load(ctx context.Context, path string) (rule.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled rules %s: %w", path, err)
	}
	artifact, err := NewCompiledRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return artifact, nil
}

// Match runs yara with the artifact against path and reports each matching
// rule to cb.
func (c *CLI) Match(ctx context.Context, artifact rule.Artifact, path string, timeout time.Duration, cb MatchCallback) error {
	dir, err := os.MkdirTemp(c.TempDir, "yarex-match-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	rulesPath := filepath.Join(dir, "rules.bin")
	f, err := os.Create(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to write compiled rules: %w", err)
	}
	_, err = artifact.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write compiled rules: %w", err)
	}

	args := []string{"-C", "-g", "-m", "-s", "-e"}
	if secs := int(timeout / time.Second); secs > 0 {
		args = append(args, "-a", strconv.Itoa(secs))
	}
	args = append(args, rulesPath, path)

	// yara enforces -a itself; the context gets a grace period on top.
	runCtx, cancel := withTimeout(ctx, graceTimeout(timeout))
	defer cancel()

	stdout, stderr, runErr := c.run(runCtx, c.YaraPath, args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if runErr != nil {
		if notStarted(runErr) {
			return fmt.Errorf("failed to run %s: %w", c.YaraPath, runErr)
		}
		if strings.Contains(strings.ToLower(string(stderr)), "timeout") {
			return ErrTimeout
		}
		return fmt.Errorf("%s failed: %w: %s", c.YaraPath, runErr, strings.TrimSpace(string(stderr)))
	}

	for _, rec := range ParseMatchOutput(string(stdout), path) {
		if cb(rec) == MatchAbort {
			break
		}
	}
	return nil
}

func graceTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + 5*time.Second
}

var stringMatchLine = regexp.MustCompile(`^0x([0-9a-fA-F]+):(\$\w*): ?(.*)$`)

// ParseMatchOutput reads the output of `yara -g -m -s -e` for target.
// Rule lines look like `ns:rule [tag1,tag2] [key="v",n=1] target` and are
// followed by one `0xOFFSET:$id: data` line per string match.
func ParseMatchOutput(output, target string) []MatchRecord {
	var records []MatchRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if m := stringMatchLine.FindStringSubmatch(line); m != nil && len(records) > 0 {
			off, _ := strconv.ParseInt(m[1], 16, 64)
			last := &records[len(records)-1]
			last.Strings = append(last.Strings, StringMatch{Offset: off, Identifier: m[2], Data: []byte(m[3])})
			continue
		}
		if rec, ok := parseRuleLine(line, target); ok {
			records = append(records, rec)
		}
	}
	return records
}

func parseRuleLine(line, target string) (MatchRecord, bool) {
	head := strings.TrimSuffix(line, " "+target)
	if head == line {
		return MatchRecord{}, false
	}

	name, rest, _ := strings.Cut(head, " ")
	rec := MatchRecord{Matches: true}
	if ns, id, ok := strings.Cut(name, ":"); ok {
		rec.Namespace, rec.Rule = ns, id
	} else {
		rec.Rule = name
	}

	tags, rest := bracketed(rest)
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			rec.Tags = append(rec.Tags, t)
		}
	}
	meta, _ := bracketed(rest)
	rec.Meta = parseMetaList(meta)
	return rec, true
}

// bracketed returns the contents of the leading [...] group of s, skipping
// brackets inside quoted strings, and what follows it.
func bracketed(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if !strings.HasPrefix(s, "[") {
		return "", s
	}
	inQuote, escaped := false, false
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == ']' && !inQuote:
			return s[1:i], s[i+1:]
		}
	}
	return s[1:], ""
}

func parseMetaList(s string) []MetaValue {
	var out []MetaValue
	for _, item := range splitOutsideQuotes(s, ',') {
		key, raw, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out = append(out, MetaValue{Key: strings.TrimSpace(key), Value: metaScalar(strings.TrimSpace(raw))})
	}
	return out
}

func metaScalar(raw string) interface{} {
	if strings.HasPrefix(raw, `"`) {
		if s, err := rule.UnquoteText(raw); err == nil {
			return s
		}
		return strings.Trim(raw, `"`)
	}
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if n, err := strconv.ParseInt(raw, 0, 64); err == nil {
		return n
	}
	return raw
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	inQuote, escaped, start := false, false, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == sep && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
