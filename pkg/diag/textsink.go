package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// TextSink is the default human-readable Sink, colorizing by severity the
// way the teacher colorizes disassembly in its interactive debugger.
type TextSink struct {
	w       io.Writer
	noColor bool
}

// NewTextSink creates a TextSink writing to w. Whether color is emitted
// follows fatih/color's own package-level NoColor detection (which looks at
// stdout, not w); forceColor does not override it.
func NewTextSink(w io.Writer, forceColor bool) *TextSink {
	s := &TextSink{w: w}
	if forceColor {
		s.noColor = false
	}
	return s
}

func (s *TextSink) Report(d Diagnostic) {
	var c *color.Color
	switch d.Kind {
	case Fatal, Error:
		c = color.New(color.FgRed, color.Bold)
	case Warning:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	if s.noColor {
		c.DisableColor()
	}

	label := c.Sprintf("%s", d.Kind)
	if d.Category != CategoryNone {
		fmt.Fprintf(s.w, "%s: %s [-W%s] %s\n", d.Location, label, d.Category, d.Message)
	} else {
		fmt.Fprintf(s.w, "%s: %s: %s\n", d.Location, label, d.Message)
	}
}
