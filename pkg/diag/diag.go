// Package diag implements the diagnostic model of the assembler and linker:
// fatal/error/warning severities, the enumerated warning categories, and a
// Bag that accumulates diagnostics and derives the process exit code.
//
// Formatting diagnostics for a human is deliberately a thin, replaceable
// concern (Sink) — this package owns the data, not the presentation.
package diag

import "fmt"

// Kind is the severity of a diagnostic.
type Kind int

const (
	Warning Kind = iota
	Error
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Category is the warning class a diagnostic belongs to, used to silence,
// promote, or leave it as a warning (spec.md §7).
type Category string

const (
	CategoryNone           Category = ""
	CategoryAssert         Category = "assert"
	CategoryBuiltinArg     Category = "builtin-arg"
	CategoryEmptyStrRpl    Category = "empty-strrpl"
	CategoryLongString     Category = "long-string"
	CategoryNumericString1 Category = "numeric-string-1"
	CategoryNumericString2 Category = "numeric-string-2"
	CategoryObsolete       Category = "obsolete"
	CategoryUser           Category = "user"
	CategoryParser         Category = "parser"
)

// Location pinpoints a diagnostic in the nested include/macro/rept stack it
// was produced under (spec.md §4.1's "outer(line) -> ... -> inner(line)").
type Location struct {
	// Frames is the context stack from outermost to innermost, one entry
	// per currently open INCLUDE/MACRO/REPT frame.
	Frames []FrameLocation
}

// FrameLocation names one frame of a Location.
type FrameLocation struct {
	Name string
	Line int
}

func (l Location) String() string {
	if len(l.Frames) == 0 {
		return "<unknown>"
	}
	s := ""
	for i, f := range l.Frames {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprintf("%s(%d)", f.Name, f.Line)
	}
	return s
}

// Diagnostic is a single reported condition.
type Diagnostic struct {
	Kind     Kind
	Category Category
	Location Location
	Message  string
	Err      error
}

func (d Diagnostic) String() string {
	if d.Category != CategoryNone {
		return fmt.Sprintf("%s: [%s] %s: %s", d.Location, d.Kind, d.Category, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Location, d.Kind, d.Message)
}

// Sink consumes diagnostics as they are reported. Formatting the diagnostic
// for a human or machine reader is the sink's responsibility — this is the
// "diagnostic formatting sink" collaborator spec.md §1 names as external;
// TextSink below is the default implementation this repo ships.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Policy decides how a category is handled: left as a warning, silenced, or
// promoted to an error.
type Policy struct {
	Silenced  map[Category]bool
	Promoted  map[Category]bool
	AllErrors bool // -Werror with no category: promote every warning
}

// NewPolicy returns a policy where every category is left at its default
// severity.
func NewPolicy() *Policy {
	return &Policy{
		Silenced: make(map[Category]bool),
		Promoted: make(map[Category]bool),
	}
}

func (p *Policy) Silence(c Category)  { p.Silenced[c] = true }
func (p *Policy) Promote(c Category)  { p.Promoted[c] = true }
func (p *Policy) PromoteAll()         { p.AllErrors = true }

// Apply adjusts a Warning-kind diagnostic's severity per the policy. Errors
// and Fatals are never touched.
func (p *Policy) Apply(d *Diagnostic) (keep bool) {
	if d.Kind != Warning {
		return true
	}
	if p.Silenced[d.Category] {
		return false
	}
	if p.AllErrors || p.Promoted[d.Category] {
		d.Kind = Error
	}
	return true
}

// Bag accumulates diagnostics, applies a Policy, forwards survivors to a
// Sink, and tracks counts for the exit code.
type Bag struct {
	Policy   *Policy
	Sink     Sink
	errors   int
	warnings int
	fatal    bool
}

// NewBag creates a Bag with the given policy and sink. A nil policy means
// every category keeps its default severity; a nil sink discards output.
func NewBag(policy *Policy, sink Sink) *Bag {
	if policy == nil {
		policy = NewPolicy()
	}
	if sink == nil {
		sink = SinkFunc(func(Diagnostic) {})
	}
	return &Bag{Policy: policy, Sink: sink}
}

// Report records a diagnostic, applying the policy first.
func (b *Bag) Report(d Diagnostic) {
	if !b.Policy.Apply(&d) {
		return
	}

	switch d.Kind {
	case Fatal:
		b.fatal = true
	case Error:
		b.errors++
	case Warning:
		b.warnings++
	}

	b.Sink.Report(d)
}

// Errorf reports an Error-kind diagnostic whose message is formatted with
// fmt.Sprintf; the diagnostic's Err field is left nil.
func (b *Bag) Errorf(loc Location, format string, args ...any) {
	b.Report(Diagnostic{Kind: Error, Location: loc, Message: fmt.Sprintf(format, args...)})
}

// Warnf reports a Warning-kind diagnostic under the given category.
func (b *Bag) Warnf(loc Location, cat Category, format string, args ...any) {
	b.Report(Diagnostic{Kind: Warning, Category: cat, Location: loc, Message: fmt.Sprintf(format, args...)})
}

// Fatalf reports a Fatal-kind diagnostic. Callers are still expected to
// unwind and terminate; Bag only records the fact for ExitCode purposes.
func (b *Bag) Fatalf(loc Location, format string, args ...any) {
	b.Report(Diagnostic{Kind: Fatal, Location: loc, Message: fmt.Sprintf(format, args...)})
}

// ErrorCount returns the number of Error-kind diagnostics reported.
func (b *Bag) ErrorCount() int { return b.errors }

// WarningCount returns the number of Warning-kind diagnostics reported.
func (b *Bag) WarningCount() int { return b.warnings }

// HasFatal reports whether a Fatal-kind diagnostic was reported.
func (b *Bag) HasFatal() bool { return b.fatal }

// ExitCode implements spec.md §7's exit code rule: 0 iff no errors (and no
// fatal), 1 otherwise. Usage errors (64) are the CLI layer's concern, not
// this package's.
func (b *Bag) ExitCode() int {
	if b.fatal || b.errors > 0 {
		return 1
	}
	return 0
}
