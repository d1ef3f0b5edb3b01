// Package symbol implements C3, the symbol table: scoped name resolution
// for labels, constants, string constants, macros, and references, plus
// the required built-in symbols.
package symbol

import (
	"fmt"
	"strings"

	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/brackenfield/gbtk/pkg/utils"
)

// Kind is the declaration form a symbol was introduced with.
type Kind int

const (
	KindLabel Kind = iota
	KindEqu
	KindVar
	KindEqus
	KindMacro
	KindRef // an IMPORT-only forward reference, resolved by the linker
	KindBuiltin
)

func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "label"
	case KindEqu:
		return "EQU"
	case KindVar:
		return "variable"
	case KindEqus:
		return "EQUS"
	case KindMacro:
		return "macro"
	case KindRef:
		return "reference"
	case KindBuiltin:
		return "built-in"
	default:
		return "unknown"
	}
}

// Mutable reports whether redefining a symbol of this kind without PURGE
// is legal (VAR is the only mutable kind; everything else is define-once).
func (k Kind) Mutable() bool { return k == KindVar }

// Symbol is one entry of the table.
type Symbol struct {
	Name     string
	Kind     Kind
	Exported bool

	// Numeric value, valid for EQU/VAR and resolved labels.
	Value    int32
	HasValue bool

	// String value, valid for EQUS.
	StringValue string

	// SectionID/Offset place a LABEL relative to the section it was
	// defined in; SectionID is -1 until the owning section exists.
	SectionID int32
	Offset    uint32

	// MacroBody is the captured, unexpanded body text for KindMacro.
	MacroBody []string

	FileName string
	Line     int

	referenced bool
}

// ErrRedefined is wrapped into errors reporting an illegal redefinition.
var ErrRedefined = fmt.Errorf("symbol redefined")

// ErrPurgeReferenced is wrapped into errors reporting PURGE of a symbol
// that is still referenced elsewhere (spec.md §9's Open Question,
// resolved as an error — see DESIGN.md).
var ErrPurgeReferenced = fmt.Errorf("cannot PURGE a referenced symbol")

// ErrUndefined is wrapped into errors reporting lookup of an unknown name.
var ErrUndefined = fmt.Errorf("undefined symbol")

// Table is the scoped symbol table for one assembly unit. Local symbols
// (names beginning with ".") are keyed under the most recently defined
// global label; anonymous labels ("@N"-style in diagnostics, "!" at the
// source level) are keyed by an internal monotonic counter.
type Table struct {
	global        map[string]*Symbol
	local         map[string]*Symbol // "Global.local" -> Symbol
	currentGlobal string
	anonCounter   int
	anonLabels    []*Symbol

	builtins map[string]func(*Table) *Symbol
}

// New creates an empty table pre-populated with the required built-ins.
func New() *Table {
	t := &Table{
		global:   make(map[string]*Symbol),
		local:    make(map[string]*Symbol),
		builtins: make(map[string]func(*Table) *Symbol),
	}
	registerBuiltins(t)
	// _RS is the RSSET/RSRESET running offset; an ordinary mutable VAR so
	// RB/RW/RL can read-modify-write it through the normal Define path.
	_ = t.Define(Symbol{Name: "_RS", Kind: KindVar, Value: 0, HasValue: true})
	return t
}

// qualify returns the fully-qualified table key for a name: local names
// (leading ".") are namespaced under the current global label.
func (t *Table) qualify(name string) (string, error) {
	if strings.HasPrefix(name, ".") {
		if t.currentGlobal == "" {
			return "", fmt.Errorf("local name %q used with no preceding global label", name)
		}
		return t.currentGlobal + name, nil
	}
	return name, nil
}

// SetCurrentGlobal records the most recently defined global label, which
// subsequent local ("." prefixed) symbols nest under.
func (t *Table) SetCurrentGlobal(name string) {
	t.currentGlobal = name
}

// NextAnonymous allocates and returns the name of the next anonymous label
// ("@N" in diagnostics, matching spec.md's REPT `\@` unique-id convention).
func (t *Table) NextAnonymous() string {
	name := fmt.Sprintf("@%d", t.anonCounter)
	t.anonCounter++
	return name
}

// Define introduces a new symbol, enforcing the redefinition rule: only
// KindVar may be redefined without an intervening PURGE.
func (t *Table) Define(s Symbol) error {
	key, err := t.qualify(s.Name)
	if err != nil {
		return err
	}

	table := t.global
	if strings.HasPrefix(s.Name, ".") {
		table = t.local
	}

	if existing, ok := table[key]; ok {
		if !existing.Kind.Mutable() || !s.Kind.Mutable() {
			return fmt.Errorf("%w: %q was previously declared as %s at %s:%d", ErrRedefined, s.Name, existing.Kind, existing.FileName, existing.Line)
		}
	}

	sym := s
	table[key] = &sym

	if s.Kind == KindLabel && !strings.HasPrefix(s.Name, ".") {
		t.currentGlobal = s.Name
	}

	return nil
}

// Lookup resolves name, consulting locals, globals, and then built-ins in
// that order. MarkReferenced-equivalent bookkeeping happens as a side
// effect so PURGE can reject symbols still in use.
func (t *Table) Lookup(name string) (*Symbol, error) {
	key, err := t.qualify(name)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(name, ".") {
		if s, ok := t.local[key]; ok {
			s.referenced = true
			return s, nil
		}
	} else if s, ok := t.global[key]; ok {
		s.referenced = true
		return s, nil
	}

	if ctor, ok := t.builtins[name]; ok {
		return ctor(t), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUndefined, name)
}

// Purge removes a symbol definition. Purging a symbol that has been
// looked up (referenced) anywhere since its definition is an error.
func (t *Table) Purge(name string) error {
	key, err := t.qualify(name)
	if err != nil {
		return err
	}

	table := t.global
	if strings.HasPrefix(name, ".") {
		table = t.local
	}

	s, ok := table[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUndefined, name)
	}
	if s.referenced {
		return fmt.Errorf("%w: %q", ErrPurgeReferenced, name)
	}

	delete(table, key)
	return nil
}

// Exported returns every symbol marked EXPORT. The order follows Go map
// iteration over the global table, so it is not defined and can differ
// between calls.
func (t *Table) Exported() []*Symbol {
	names := utils.Keys(t.global)
	var out []*Symbol
	for _, n := range names {
		if s := t.global[n]; s.Exported {
			out = append(out, s)
		}
	}
	return out
}

// ToObjSymbol converts a resolved local Symbol into the object-file
// Symbol record C6 persists, given the index name→file mapping used by
// the owning module.
func ToObjSymbol(s *Symbol, fileIndex uint32) obj.Symbol {
	objType := obj.SymLocal
	if s.Exported {
		objType = obj.SymExport
	}
	if s.Kind == KindRef {
		objType = obj.SymImport
	}
	return obj.Symbol{
		Name:      s.Name,
		Type:      objType,
		FileIndex: fileIndex,
		Line:      uint32(s.Line),
		SectionID: s.SectionID,
		Value:     s.Value,
	}
}
