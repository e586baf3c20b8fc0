// yarex/pkg/compiler/persist.go

package compiler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
)

func (c *Compiler) SourcePath(name string) string {
	return filepath.Join(c.opts.RulesDir, name+c.opts.SourceExt)
}

func (c *Compiler) CompiledPath(name string) string {
	return filepath.Join(c.opts.RulesDir, name+c.opts.CompiledExt)
}

// SaveSource writes the rendered rule to <rules_dir>/<name><source_ext>.
func (c *Compiler) SaveSource(r *rule.Rule) (string, error) {
	path := c.SourcePath(r.Name())
	err := writeAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, r.Render())
		return err
	})
	if err != nil {
		return "", err
	}
	logging.Logger.Info().Str("rule", r.Name()).Str("path", path).Msg("Saved rule source")
	return path, nil
}

// SaveCompiled writes artifact to <rules_dir>/<name><compiled_ext>.
func (c *Compiler) SaveCompiled(r *rule.Rule, artifact rule.Artifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("rule %s has no compiled artifact", r.Name())
	}
	path := c.CompiledPath(r.Name())
	err := writeAtomic(path, func(w io.Writer) error {
		_, err := artifact.WriteTo(w)
		return err
	})
	if err != nil {
		return "", err
	}
	logging.Logger.Info().Str("rule", r.Name()).Str("path", path).Msg("Saved compiled rule")
	return path, nil
}

// writeAtomic writes to a temporary file beside path and renames it into
// place, creating the directory if needed. Readers see the old file or the
// new one, never a partial write.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create rules directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
