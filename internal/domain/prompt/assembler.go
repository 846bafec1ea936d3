// Package prompt renders the model prompt from typed inputs.
package prompt

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
)

// layout is the fixed prompt structure. Slots are filled with already
// neutralised text.
const layout = `{{.Instructions}}
{{- if .Grounded}}

<context>
{{- range .Chunks}}
<chunk rank="{{.Rank}}" source="{{.Source}}" page="{{.Page}}">
{{.Text}}
</chunk>
{{- end}}
</context>
{{- end}}

Question: {{.Question}}
`

var layoutTmpl = template.Must(template.New("layout").Parse(layout))

// reservedTag matches open/close tags of the sections used by the prompt and
// by the response parser, in any case and with optional attributes.
var reservedTag = regexp.MustCompile(`(?i)<\s*/?\s*(think|answer|context|chunk)\b[^<>]*>?`)

// Assembler builds prompts. It is immutable and safe for concurrent use.
type Assembler struct {
	instructions *template.Template
}

// New parses an instructions template. The template may use {{.References}}.
// An empty text selects DefaultInstructions.
func New(instructions string) (*Assembler, error) {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}
	t, err := template.New("instructions").Option("missingkey=error").Parse(instructions)
	if err != nil {
		return nil, fmt.Errorf("parse instructions template: %w", err)
	}
	return &Assembler{instructions: t}, nil
}

// MustNew is New for compile-time constant templates.
func MustNew(instructions string) *Assembler {
	a, err := New(instructions)
	if err != nil {
		panic(err)
	}
	return a
}

type chunkView struct {
	Rank   int
	Source string
	Page   string
	Text   string
}

// Assemble renders the prompt. A nil context selects the general-knowledge
// variant; a non-nil context (even empty) the grounded one, with chunks in
// the given rank order ahead of the question.
func (a *Assembler) Assemble(question string, context []chunk.Chunk, refs []reference.Source) (string, error) {
	var instr bytes.Buffer
	if err := a.instructions.Execute(&instr, struct{ References string }{renderReferences(refs)}); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}

	views := make([]chunkView, len(context))
	for i, c := range context {
		page := ""
		if p := c.Page(); p >= 0 {
			page = strconv.Itoa(p + 1)
		}
		views[i] = chunkView{
			Rank:   i + 1,
			Source: attr(c.SourceID()),
			Page:   page,
			Text:   Neutralize(c.Text()),
		}
	}

	var out bytes.Buffer
	err := layoutTmpl.Execute(&out, struct {
		Instructions string
		Grounded     bool
		Chunks       []chunkView
		Question     string
	}{
		Instructions: strings.TrimSpace(instr.String()),
		Grounded:     context != nil,
		Chunks:       views,
		Question:     Neutralize(strings.TrimSpace(question)),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out.String(), nil
}

func renderReferences(refs []reference.Source) string {
	if len(refs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, r := range refs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, Neutralize(r.URL))
	}
	return b.String()
}

// Neutralize replaces the angle brackets of reserved section tags with
// look-alike guillemets so untrusted text cannot open or close a section.
func Neutralize(s string) string {
	return reservedTag.ReplaceAllStringFunc(s, func(tag string) string {
		tag = strings.ReplaceAll(tag, "<", "‹")
		return strings.ReplaceAll(tag, ">", "›")
	})
}

// attr makes s safe inside a double-quoted tag attribute.
func attr(s string) string {
	return strings.NewReplacer(`"`, "'", "<", "‹", ">", "›", "\n", " ").Replace(s)
}
