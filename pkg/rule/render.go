// yarex/pkg/rule/render.go

package rule

import (
	"strings"
)

const (
	// Indent is the unit indentation of sections inside the rule block.
	Indent = "    "
	// ConditionIndentLength is the column offset of the condition text:
	// two indent units.
	ConditionIndentLength = 2 * len(Indent)
)

// RenderOptions tweak Render output. The zero value is the normal rendering.
type RenderOptions struct {
	// ConditionAsLines puts every space-separated condition token on its
	// own line. Only used to recover error columns from the engine.
	ConditionAsLines bool
}

// Render produces the rule's source text. Output is byte-for-byte stable for
// identical rules:
//
//	rule Name: tag1 tag2
//	{
//	    meta:
//	        key = "value"
//
//	    strings:
//	        $a = "abc"
//
//	    condition:
//	        $a
//	}
//
// An absent meta or strings section leaves an empty line in its place.
// Only patterns the condition references are emitted.
func (r *Rule) Render() string {
	return r.RenderWith(RenderOptions{})
}

// RenderConditionLines is Render with one condition token per line.
func (r *Rule) RenderConditionLines() string {
	return r.RenderWith(RenderOptions{ConditionAsLines: true})
}

func (r *Rule) RenderWith(opts RenderOptions) string {
	var b strings.Builder
	r.writeHead(&b)

	b.WriteString(Indent + "condition:\n" + Indent + Indent)
	if opts.ConditionAsLines {
		b.WriteString(r.ConditionAsLines())
	} else {
		b.WriteString(r.condition)
	}
	b.WriteString("\n}\n")

	return b.String()
}

// writeHead writes everything above the condition section.
func (r *Rule) writeHead(b *strings.Builder) {
	b.WriteString("rule ")
	b.WriteString(r.name)
	if len(r.tags) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(r.tags, " "))
	}
	b.WriteString("\n{\n")

	if len(r.meta) > 0 {
		b.WriteString(Indent + "meta:")
		for _, m := range r.meta {
			b.WriteString("\n" + Indent + Indent)
			b.WriteString(m.String())
		}
	}
	b.WriteString("\n\n")

	if refs := r.ReferencedPatterns(); len(refs) > 0 {
		b.WriteString(Indent + "strings:")
		for _, p := range refs {
			b.WriteString("\n" + Indent + Indent)
			b.WriteString(p.String())
		}
	}
	b.WriteString("\n\n")
}

// ConditionAsLines returns the condition with every space replaced by a
// newline.
func (r *Rule) ConditionAsLines() string {
	return strings.ReplaceAll(r.condition, " ", "\n")
}

// ConditionLine is the 1-based line of Render output on which the condition
// starts.
func (r *Rule) ConditionLine() int {
	var b strings.Builder
	r.writeHead(&b)
	return strings.Count(b.String(), "\n") + 2
}
