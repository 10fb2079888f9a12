// Package output renders command results for terminals, pipes, and
// machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode selects the output format.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   Mode
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, isTTY: isTTY, mode: mode}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves ModeAuto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes a table with the given header. Markdown mode emits a
// markdown table; every other mode a boxed terminal table.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

// Header prints a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		_, _ = fmt.Fprintf(r.out, "%s %s\n\n", strings.Repeat("#", level), text)
		return
	}
	_, _ = fmt.Fprintln(r.out, text)
	if level <= 1 {
		_, _ = fmt.Fprintln(r.out, strings.Repeat("=", len(text)))
	}
}

// Success prints a success line.
func (r *Renderer) Success(msg string) {
	r.line(r.out, "✓", msg)
}

// Warning prints a warning line to the diagnostic stream.
func (r *Renderer) Warning(msg string) {
	r.line(r.errOut, "!", msg)
}

// Error prints an error line to the diagnostic stream.
func (r *Renderer) Error(msg string) {
	r.line(r.errOut, "✗", msg)
}

// Muted prints secondary information.
func (r *Renderer) Muted(msg string) {
	if r.EffectiveMode() == ModeMarkdown {
		_, _ = fmt.Fprintf(r.out, "_%s_\n", msg)
		return
	}
	_, _ = fmt.Fprintf(r.out, "  %s\n", msg)
}

// Println prints a plain line.
func (r *Renderer) Println(msg string) {
	_, _ = fmt.Fprintln(r.out, msg)
}

func (r *Renderer) line(w io.Writer, marker, msg string) {
	if r.EffectiveMode() == ModeMarkdown {
		_, _ = fmt.Fprintf(w, "- %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", marker, msg)
}

var titleCaser = cases.Title(language.English)

// Label title-cases a status word for display.
func Label(s string) string {
	return titleCaser.String(s)
}
