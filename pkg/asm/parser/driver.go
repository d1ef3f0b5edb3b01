package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brackenfield/gbtk/pkg/asm/charmap"
	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/asm/lexer"
	"github.com/brackenfield/gbtk/pkg/asm/section"
	"github.com/brackenfield/gbtk/pkg/asm/symbol"
	"github.com/brackenfield/gbtk/pkg/diag"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// IncludeResolver reads the lines of a file named by an INCLUDE directive.
// Splitting the file into a resolver interface keeps the directive engine
// free of any actual filesystem dependency (C2's documented collaborator
// boundary).
type IncludeResolver interface {
	ReadLines(name string) ([]string, error)
}

// Driver is the top-level statement-dispatch engine (C2): it drives a
// Lexer one statement at a time and, through the symbol table, section
// builder, expression engine, and charmap stack, assembles one source file
// into a finished object Module.
type Driver struct {
	lx     *lexer.Lexer
	peeked *lexer.Token

	syms     *symbol.Table
	buildCtx *symbol.BuildContext
	sections *section.Builder
	charmaps *charmap.Stack
	cond     conditionalStack
	bag      *diag.Bag

	includeResolver IncludeResolver
	optimize        bool

	fileNames      []string
	fileIndex      uint32
	fileIndexStack []uint32
	fileIndexDepth []int

	nodes       []obj.Node
	reptCounter int

	// maxDepth bounds INCLUDE/MACRO/REPT nesting (the CLI's -r N); 0 means
	// unbounded. Exceeding it stops assembly with a returned "recursion
	// limit" error; no Fatal diagnostic is reported to the bag.
	maxDepth int

	// pcSymbols is the synthetic-per-occurrence "@" workaround: ToRPN's
	// KindPC case serializes through a single named "@" symbol lookup,
	// which cannot represent more than one distinct PC value in one
	// module. Each patch site that references "@" gets its own synthetic
	// symbol (named "@<n>") carrying that site's actual PC, so the linker
	// resolves each patch against the PC it was really written at instead
	// of a single shared one.
	pcSymbols []obj.Symbol

	objSymbols     []obj.Symbol
	symbolIndexMap map[string]uint32

	assertions []obj.Assertion
}

// NewDriver creates a Driver. bag may be nil to discard diagnostics;
// includeResolver may be nil if the source under assembly never uses
// INCLUDE.
func NewDriver(bag *diag.Bag, includeResolver IncludeResolver) *Driver {
	if bag == nil {
		bag = diag.NewBag(nil, nil)
	}
	syms := symbol.New()
	ctx := &symbol.BuildContext{Clock: symbol.SystemClock{}}
	syms.Bind(ctx)
	return &Driver{
		syms:            syms,
		buildCtx:        ctx,
		sections:        section.New(),
		charmaps:        charmap.NewStack(),
		bag:             bag,
		includeResolver: includeResolver,
		symbolIndexMap:  make(map[string]uint32),
	}
}

// SetMaxDepth bounds INCLUDE/MACRO/REPT context-stack nesting; 0 (the
// default) leaves it unbounded.
func (d *Driver) SetMaxDepth(n int) {
	d.maxDepth = n
}

// SetOptimize opts into the HRAM-load peephole rewrite (section.
// RewriteHRAMLoads) for the whole assembly, the CLI's -O flag; a source
// file's own `OPT o` directive opts in the same way for the rest of the
// file.
func (d *Driver) SetOptimize(v bool) {
	d.optimize = v
}

// Assemble tokenizes and assembles one source file (already split into
// lines by the caller) into a finished object Module.
func (d *Driver) Assemble(fileName string, lines []string) (*obj.Module, error) {
	d.fileNames = []string{fileName}
	d.lx = lexer.New(fileName, lines, d)

	for {
		done, err := d.statement()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.lx.Location(), err)
		}
		if done {
			break
		}
	}

	if d.cond.Depth() != 0 {
		return nil, fmt.Errorf("unterminated IF block at end of file")
	}

	return d.buildModule(), nil
}

// Interpolate implements lexer.Interpolator, resolving "{name}" against the
// symbol table: EQUS constants substitute their string, numeric symbols
// substitute their decimal value.
func (d *Driver) Interpolate(name string) (string, error) {
	s, err := d.syms.Lookup(name)
	if err != nil {
		return "", err
	}
	if s.Kind == symbol.KindEqus {
		return s.StringValue, nil
	}
	if s.HasValue {
		return strconv.Itoa(int(s.Value)), nil
	}
	return "", fmt.Errorf("%q cannot be interpolated: no constant value", name)
}

// --- token plumbing -------------------------------------------------------

func (d *Driver) peekTok() (lexer.Token, error) {
	if d.peeked == nil {
		t, err := d.lx.NextToken()
		if err != nil {
			return lexer.Token{}, err
		}
		d.peeked = &t
	}
	return *d.peeked, nil
}

func (d *Driver) nextTok() (lexer.Token, error) {
	t, err := d.peekTok()
	if err != nil {
		return t, err
	}
	d.peeked = nil
	return t, nil
}

func (d *Driver) expect(k lexer.TokenKind) (lexer.Token, error) {
	t, err := d.nextTok()
	if err != nil {
		return t, err
	}
	if t.Kind != k {
		return t, fmt.Errorf("unexpected token %s", t)
	}
	return t, nil
}

func (d *Driver) expectNewline() error {
	t, err := d.nextTok()
	if err != nil {
		return err
	}
	if t.Kind != lexer.TokNewline && t.Kind != lexer.TokEOF {
		return fmt.Errorf("unexpected trailing token %s", t)
	}
	if t.Kind == lexer.TokEOF {
		d.peeked = &t // let the outer loop see EOF again
	}
	return nil
}

func (d *Driver) parseExpr() (*expr.Node, error) {
	ep := &ExprParser{peekFn: d.peekTok, nextFn: d.nextTok}
	return ep.ParseExpr()
}

func (d *Driver) constExpr(what string) (int32, error) {
	n, err := d.parseExpr()
	if err != nil {
		return 0, err
	}
	v, ok, err := expr.Eval(n, asmResolver{d})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s must be a compile-time constant", what)
	}
	return v, nil
}

func (d *Driver) currentLine() int {
	loc := d.lx.Location()
	if len(loc.Frames) == 0 {
		return 0
	}
	return loc.Frames[len(loc.Frames)-1].Line
}

// --- statement dispatch ---------------------------------------------------

func (d *Driver) syncForVar() error {
	f := d.lx.Stack().Top()
	if f != nil && f.Kind == lexer.FrameRept && f.ForVar != "" {
		return d.syms.Define(symbol.Symbol{Name: f.ForVar, Kind: symbol.KindVar, Value: f.ForValue, HasValue: true})
	}
	return nil
}

// syncBuildContext keeps __FILE__/__LINE__/_NARG current for the next
// statement: FileName/Line track the innermost frame's source position,
// NArg tracks the nearest enclosing MACRO invocation's argument count.
func (d *Driver) syncBuildContext() {
	d.buildCtx.FileName = d.currentFileName()
	d.buildCtx.Line = d.currentLine()
	d.buildCtx.NArg = d.lx.Stack().NArg()
}

func (d *Driver) syncFileIndex() {
	for len(d.fileIndexDepth) > 0 && d.lx.Stack().Len() < d.fileIndexDepth[len(d.fileIndexDepth)-1] {
		d.fileIndex = d.fileIndexStack[len(d.fileIndexStack)-1]
		d.fileIndexStack = d.fileIndexStack[:len(d.fileIndexStack)-1]
		d.fileIndexDepth = d.fileIndexDepth[:len(d.fileIndexDepth)-1]
	}
}

// statement reads and dispatches one line. syncFileIndex/syncForVar run
// AFTER the token fetch, not before: the Stack only rolls a REPT/FOR frame
// over to its next pass (or pops an exhausted INCLUDE frame) lazily, as a
// side effect of the NextLine() call inside nextTok() — checking state
// before that call would still observe the previous line's frame.
func (d *Driver) statement() (bool, error) {
	tok, err := d.nextTok()
	if err != nil {
		return false, err
	}

	d.syncFileIndex()
	if err := d.syncForVar(); err != nil {
		return false, err
	}
	d.syncBuildContext()

	if d.maxDepth > 0 && d.lx.Stack().Len() > d.maxDepth {
		return false, fmt.Errorf("recursion limit (%d) exceeded", d.maxDepth)
	}

	switch tok.Kind {
	case lexer.TokEOF:
		return true, nil
	case lexer.TokNewline:
		return false, nil
	case lexer.TokIdent:
		return false, d.dispatchFromIdent(tok)
	default:
		return false, fmt.Errorf("unexpected token %s at start of line", tok)
	}
}

// directiveKeywords is every bare-word directive the engine recognizes, so
// dispatchFromIdent can tell a directive/mnemonic apart from a label that
// merely lacks a trailing colon (spec.md §4.2's label-without-colon form).
var directiveKeywords = map[string]bool{
	"EQU": true, "SET": true, "EQUS": true, "MACRO": true, "ENDM": true,
	"RSSET": true, "RSRESET": true, "RB": true, "RW": true, "RL": true,
	"SECTION": true, "LOAD": true, "ENDL": true, "PUSHS": true, "POPS": true,
	"UNION": true, "NEXTU": true, "ENDU": true,
	"DB": true, "DW": true, "DL": true, "DS": true,
	"IF": true, "ELIF": true, "ELSE": true, "ENDC": true,
	"EXPORT": true, "GLOBAL": true, "PURGE": true, "INCLUDE": true,
	"ASSERT": true, "STATIC_ASSERT": true,
	"PRINT": true, "PRINTLN": true, "FAIL": true, "WARN": true,
	"NEWCHARMAP": true, "SETCHARMAP": true, "PUSHC": true, "POPC": true, "CHARMAP": true,
	"OPT": true, "REPT": true, "FOR": true, "ENDR": true,
	"BREAK": true, "SHIFT": true,
}

func isMnemonic(name string) bool {
	switch name {
	case "LD", "LDH", "JR", "JP", "CALL", "RET", "RETI", "RST",
		"PUSH", "POP", "ADD", "ADC", "SUB", "SBC", "AND", "XOR", "OR", "CP",
		"NOP", "HALT", "DI", "EI":
		return true
	}
	return false
}

func (d *Driver) dispatchFromIdent(first lexer.Token) error {
	upper := strings.ToUpper(first.Text)

	// A label, with or without a trailing colon. Two forms carry a value
	// directly after the name: `NAME: EQU/SET/EQUS expr` and `NAME MACRO`.
	if !directiveKeywords[upper] && !isMnemonic(upper) {
		return d.dispatchFromIdentLabel(first)
	}

	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokColon {
		// A label whose name happens to collide with a keyword/mnemonic
		// text is vanishingly rare in practice; colon disambiguates it.
		return d.dispatchFromIdentLabel(first)
	}

	if isMnemonic(upper) {
		return d.handleInstruction(upper)
	}
	return d.dispatchKeyword(upper)
}

// dispatchFromIdentLabel handles everything that starts with a bare name:
// a label definition (colon or bare-newline form), or a name-prefixed
// directive (EQU/SET/EQUS/MACRO/RB/RW/RL).
func (d *Driver) dispatchFromIdentLabel(nameTok lexer.Token) error {
	nt, err := d.peekTok()
	if err != nil {
		return err
	}

	if nt.Kind == lexer.TokColon {
		d.nextTok()
		// A second colon marks an EXPORT-visible label (`Name::`).
		exported := false
		nt2, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt2.Kind == lexer.TokColon {
			d.nextTok()
			exported = true
		}
		if err := d.defineLabel(nameTok.Text, exported); err != nil {
			return err
		}
		return d.afterLabel()
	}

	if nt.Kind == lexer.TokIdent {
		switch strings.ToUpper(nt.Text) {
		case "EQU":
			d.nextTok()
			return d.handleEqu(nameTok.Text)
		case "SET":
			d.nextTok()
			return d.handleSet(nameTok.Text)
		case "EQUS":
			d.nextTok()
			return d.handleEqus(nameTok.Text)
		case "MACRO":
			d.nextTok()
			return d.handleMacroDef(nameTok.Text)
		case "RB":
			d.nextTok()
			return d.handleRsAlloc(nameTok.Text, 1)
		case "RW":
			d.nextTok()
			return d.handleRsAlloc(nameTok.Text, 2)
		case "RL":
			d.nextTok()
			return d.handleRsAlloc(nameTok.Text, 4)
		}
	}

	// A macro invocation: `name arg1, arg2, ...` with no colon and no
	// recognized value-directive keyword following.
	if sym, err := d.syms.Lookup(nameTok.Text); err == nil && sym.Kind == symbol.KindMacro {
		return d.invokeMacro(sym)
	}

	// Bare-newline label form (no colon at all).
	if err := d.defineLabel(nameTok.Text, false); err != nil {
		return err
	}
	return d.afterLabel()
}

// afterLabel continues parsing the rest of the line after a label
// definition: either nothing (bare label line) or an instruction/directive
// sharing the line with its label.
func (d *Driver) afterLabel() error {
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokNewline || nt.Kind == lexer.TokEOF {
		d.nextTok()
		return nil
	}
	if nt.Kind != lexer.TokIdent {
		return fmt.Errorf("unexpected token %s after label", nt)
	}
	d.nextTok()
	return d.dispatchFromIdent(nt)
}

func (d *Driver) defineLabel(name string, exported bool) error {
	sec := d.sections.Active()
	sectionID := int32(-1)
	if sec != nil {
		sectionID = d.sections.IndexOf(sec)
	}
	sym := symbol.Symbol{
		Name: name, Kind: symbol.KindLabel, Exported: exported,
		SectionID: sectionID, Offset: d.sections.Offset(),
		Value: int32(d.sections.Offset()), HasValue: sec != nil && sec.Org != obj.FloatingOrg,
		FileName: d.currentFileName(), Line: d.currentLine(),
	}
	if sec != nil && sec.Org != obj.FloatingOrg {
		sym.Value = sec.Org + int32(d.sections.Offset())
	}
	if err := d.syms.Define(sym); err != nil {
		return err
	}
	if !strings.HasPrefix(name, ".") {
		d.syms.SetCurrentGlobal(name)
	}
	return nil
}

func (d *Driver) currentFileName() string {
	if int(d.fileIndex) < len(d.fileNames) {
		return d.fileNames[d.fileIndex]
	}
	return ""
}

func (d *Driver) dispatchKeyword(kw string) error {
	switch kw {
	case "EQU", "SET", "EQUS", "MACRO", "RB", "RW", "RL":
		return fmt.Errorf("%s requires a preceding name", kw)
	case "ENDM":
		return fmt.Errorf("ENDM with no matching MACRO")
	case "RSSET":
		return d.handleRsset()
	case "RSRESET":
		return d.handleRsreset()
	case "SECTION":
		return d.handleSection()
	case "LOAD":
		return d.handleLoad()
	case "ENDL":
		if err := d.sections.EndLoad(); err != nil {
			return err
		}
		return d.expectNewline()
	case "PUSHS":
		d.sections.PushSection()
		return d.expectNewline()
	case "POPS":
		if err := d.sections.PopSection(); err != nil {
			return err
		}
		return d.expectNewline()
	case "NEXTU":
		if err := d.sections.NextUnionArm(); err != nil {
			return err
		}
		return d.expectNewline()
	case "ENDU":
		if err := d.sections.EndUnion(); err != nil {
			return err
		}
		return d.expectNewline()
	case "DB":
		return d.handleData(1)
	case "DW":
		return d.handleData(2)
	case "DL":
		return d.handleData(4)
	case "DS":
		return d.handleDS()
	case "IF":
		return d.handleIf()
	case "ELIF":
		return d.handleElif()
	case "ELSE":
		if err := d.cond.Else(); err != nil {
			return err
		}
		if !d.cond.Active() {
			return d.skipToStructural()
		}
		return d.expectNewline()
	case "ENDC":
		if err := d.cond.Endc(); err != nil {
			return err
		}
		return d.expectNewline()
	case "EXPORT", "GLOBAL":
		return d.handleExport()
	case "PURGE":
		return d.handlePurge()
	case "INCLUDE":
		return d.handleInclude()
	case "ASSERT", "STATIC_ASSERT":
		return d.handleAssert()
	case "PRINT", "PRINTLN":
		return d.handlePrint(kw)
	case "FAIL":
		return d.handleFail()
	case "WARN":
		return d.handleWarn()
	case "NEWCHARMAP":
		return d.handleNewCharmap()
	case "SETCHARMAP":
		return d.handleSetCharmap()
	case "PUSHC":
		d.charmaps.Push()
		return d.expectNewline()
	case "POPC":
		if err := d.charmaps.Pop(); err != nil {
			return err
		}
		return d.expectNewline()
	case "CHARMAP":
		return d.handleCharmapEntry()
	case "OPT":
		return d.handleOpt()
	case "REPT":
		return d.handleRept()
	case "FOR":
		return d.handleFor()
	case "ENDR":
		return fmt.Errorf("ENDR with no matching REPT/FOR")
	case "BREAK":
		return d.handleBreak()
	case "SHIFT":
		return d.handleShift()
	default:
		return fmt.Errorf("unknown directive %q", kw)
	}
}

// --- EQU/SET/EQUS/RS ------------------------------------------------------

func (d *Driver) handleEqu(name string) error {
	v, err := d.constExpr("EQU")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.syms.Define(symbol.Symbol{Name: name, Kind: symbol.KindEqu, Value: v, HasValue: true, FileName: d.currentFileName(), Line: d.currentLine()})
}

func (d *Driver) handleSet(name string) error {
	v, err := d.constExpr("SET")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.syms.Define(symbol.Symbol{Name: name, Kind: symbol.KindVar, Value: v, HasValue: true, FileName: d.currentFileName(), Line: d.currentLine()})
}

func (d *Driver) handleEqus(name string) error {
	t, err := d.expect(lexer.TokString)
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.syms.Define(symbol.Symbol{Name: name, Kind: symbol.KindEqus, StringValue: t.Text, FileName: d.currentFileName(), Line: d.currentLine()})
}

func (d *Driver) handleRsset() error {
	v, err := d.constExpr("RSSET")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.setRS(v)
}

func (d *Driver) handleRsreset() error {
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.setRS(0)
}

func (d *Driver) setRS(v int32) error {
	s, err := d.syms.Lookup("_RS")
	if err != nil {
		return err
	}
	return d.syms.Define(symbol.Symbol{Name: "_RS", Kind: symbol.KindVar, Value: v, HasValue: true, FileName: s.FileName})
}

// handleRsAlloc implements the `NAME RB/RW/RL [count]` struct-offset
// allocator form: NAME EQU's to the running _RS counter, which then
// advances by width*count.
func (d *Driver) handleRsAlloc(name string, width int32) error {
	count := int32(1)
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind != lexer.TokNewline && nt.Kind != lexer.TokEOF {
		count, err = d.constExpr("RB/RW/RL count")
		if err != nil {
			return err
		}
	}
	if err := d.expectNewline(); err != nil {
		return err
	}

	cur, err := d.syms.Lookup("_RS")
	if err != nil {
		return err
	}
	if err := d.syms.Define(symbol.Symbol{Name: name, Kind: symbol.KindEqu, Value: cur.Value, HasValue: true, FileName: d.currentFileName(), Line: d.currentLine()}); err != nil {
		return err
	}
	return d.setRS(cur.Value + width*count)
}

// --- SECTION/LOAD -----------------------------------------------------

var sectionTypeNames = map[string]obj.SectionType{
	"ROM0": obj.ROM0, "ROMX": obj.ROMX, "VRAM": obj.VRAM, "SRAM": obj.SRAM,
	"WRAM0": obj.WRAM0, "WRAMX": obj.WRAMX, "HRAM": obj.HRAM, "OAM": obj.OAM,
}

// parseSectionHeader parses the shared tail of SECTION and LOAD: a
// modifier keyword, the quoted name, a comma, the type name, and the
// bracketed/keyword attributes (ORG, BANK[n], ALIGN[log2, ofs]).
func (d *Driver) parseSectionHeader() (name string, typ obj.SectionType, mod obj.Modifier, org, bank int32, alignLog2 uint8, alignOfs uint32, err error) {
	org, bank = obj.FloatingOrg, obj.FloatingBank

	t, err := d.peekTok()
	if err != nil {
		return
	}
	if t.Kind == lexer.TokIdent {
		switch strings.ToUpper(t.Text) {
		case "UNION":
			mod = obj.Union
			d.nextTok()
		case "FRAGMENT":
			mod = obj.Fragment
			d.nextTok()
		}
	}

	nameTok, err := d.expect(lexer.TokString)
	if err != nil {
		return
	}
	name = nameTok.Text

	if _, err = d.expect(lexer.TokComma); err != nil {
		return
	}

	typeTok, err := d.expect(lexer.TokIdent)
	if err != nil {
		return
	}
	var ok bool
	typ, ok = sectionTypeNames[strings.ToUpper(typeTok.Text)]
	if !ok {
		err = fmt.Errorf("unknown section type %q", typeTok.Text)
		return
	}

	for {
		nt, e := d.peekTok()
		if e != nil {
			err = e
			return
		}
		if nt.Kind == lexer.TokLBracket {
			d.nextTok()
			v, e := d.constExpr("SECTION address")
			if e != nil {
				err = e
				return
			}
			org = v
			if _, err = d.expect(lexer.TokRBracket); err != nil {
				return
			}
			continue
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			kwTok, e := d.expect(lexer.TokIdent)
			if e != nil {
				err = e
				return
			}
			switch strings.ToUpper(kwTok.Text) {
			case "BANK":
				if _, err = d.expect(lexer.TokLBracket); err != nil {
					return
				}
				v, e := d.constExpr("BANK")
				if e != nil {
					err = e
					return
				}
				bank = v
				if _, err = d.expect(lexer.TokRBracket); err != nil {
					return
				}
			case "ALIGN":
				if _, err = d.expect(lexer.TokLBracket); err != nil {
					return
				}
				v, e := d.constExpr("ALIGN")
				if e != nil {
					err = e
					return
				}
				alignLog2 = uint8(v)
				nt2, e := d.peekTok()
				if e != nil {
					err = e
					return
				}
				if nt2.Kind == lexer.TokComma {
					d.nextTok()
					o, e := d.constExpr("ALIGN offset")
					if e != nil {
						err = e
						return
					}
					alignOfs = uint32(o)
				}
				if _, err = d.expect(lexer.TokRBracket); err != nil {
					return
				}
			default:
				err = fmt.Errorf("unknown SECTION attribute %q", kwTok.Text)
				return
			}
			continue
		}
		break
	}
	return
}

func (d *Driver) handleSection() error {
	name, typ, mod, org, bank, alignLog2, alignOfs, err := d.parseSectionHeader()
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.sections.Declare(name, typ, mod, org, bank, alignLog2, alignOfs)
}

func (d *Driver) handleLoad() error {
	name, typ, _, org, bank, _, _, err := d.parseSectionHeader()
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.sections.BeginLoad(name, typ, org, bank)
}

// --- DB/DW/DL/DS -----------------------------------------------------------

func (d *Driver) handleData(width int) error {
	for {
		t, err := d.peekTok()
		if err != nil {
			return err
		}
		if t.Kind == lexer.TokString && width == 1 {
			d.nextTok()
			if err := d.sections.EmitBytes(d.charmaps.Active().Encode(t.Text)); err != nil {
				return err
			}
		} else {
			n, err := d.parseExpr()
			if err != nil {
				return err
			}
			if err := d.emitSized(n, width); err != nil {
				return err
			}
		}
		nt, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	return d.expectNewline()
}

func (d *Driver) emitSized(n *expr.Node, width int) error {
	v, ok, err := expr.Eval(n, asmResolver{d})
	if err != nil {
		return err
	}
	if ok {
		buf := make([]byte, width)
		for i := 0; i < width; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		return d.sections.EmitBytes(buf)
	}

	pt := obj.PatchByte
	switch width {
	case 2:
		pt = obj.PatchWord
	case 4:
		pt = obj.PatchLong
	}
	if err := d.sections.EmitBytes(make([]byte, width)); err != nil {
		return err
	}
	rpn, err := expr.ToRPN(n, d.symbolIndexer())
	if err != nil {
		return err
	}
	d.sections.AddPatch(obj.Patch{Type: pt, RPN: rpn, FileIndex: d.fileIndex, Line: uint32(d.currentLine())})
	return nil
}

func (d *Driver) handleDS() error {
	n, err := d.constExpr("DS")
	if err != nil {
		return err
	}
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokComma {
		d.nextTok()
		fill, err := d.constExpr("DS fill value")
		if err != nil {
			return err
		}
		if err := d.expectNewline(); err != nil {
			return err
		}
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(fill)
		}
		return d.sections.EmitBytes(buf)
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.sections.Reserve(uint32(n))
}

// --- IF/ELIF/ELSE/ENDC ------------------------------------------------------

func (d *Driver) handleIf() error {
	v, err := d.constExpr("IF condition")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	d.cond.PushIf(v != 0)
	if !d.cond.Active() {
		return d.skipToStructural()
	}
	return nil
}

func (d *Driver) handleElif() error {
	v, err := d.constExpr("ELIF condition")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	if err := d.cond.Elif(v != 0); err != nil {
		return err
	}
	if !d.cond.Active() {
		return d.skipToStructural()
	}
	return nil
}

// skipToStructural fast-forwards raw source (no tokenizing, no expression
// evaluation) to the next ELIF/ELSE/ENDC at this IF's nesting depth, then
// consumes that keyword and continues dispatch from there — so a skipped
// branch's undefined symbols and syntax never have to parse cleanly.
func (d *Driver) skipToStructural() error {
	word, err := d.lx.SkipTo([]string{"IF"}, "ELIF", "ELSE", "ENDC")
	if err != nil {
		return err
	}
	kwTok, err := d.nextTok()
	if err != nil {
		return err
	}
	if !strings.EqualFold(kwTok.Text, word) {
		return fmt.Errorf("internal error: expected %s, got %s", word, kwTok.Text)
	}
	switch word {
	case "ELIF":
		return d.handleElif()
	case "ELSE":
		if err := d.cond.Else(); err != nil {
			return err
		}
		if !d.cond.Active() {
			return d.skipToStructural()
		}
		return d.expectNewline()
	case "ENDC":
		if err := d.cond.Endc(); err != nil {
			return err
		}
		return d.expectNewline()
	}
	return nil
}

// --- EXPORT/PURGE/INCLUDE ---------------------------------------------------

func (d *Driver) handleExport() error {
	for {
		t, err := d.expect(lexer.TokIdent)
		if err != nil {
			return err
		}
		s, err := d.syms.Lookup(t.Text)
		if err != nil {
			return err
		}
		s.Exported = true
		nt, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	return d.expectNewline()
}

func (d *Driver) handlePurge() error {
	for {
		t, err := d.expect(lexer.TokIdent)
		if err != nil {
			return err
		}
		if err := d.syms.Purge(t.Text); err != nil {
			return err
		}
		nt, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	return d.expectNewline()
}

func (d *Driver) handleInclude() error {
	nameTok, err := d.expect(lexer.TokString)
	if err != nil {
		return err
	}
	if d.includeResolver == nil {
		return fmt.Errorf("INCLUDE %q: no include resolver configured", nameTok.Text)
	}
	lines, err := d.includeResolver.ReadLines(nameTok.Text)
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}

	d.nodes = append(d.nodes, obj.Node{ParentIndex: int32(len(d.nodes) - 1), ParentLine: uint32(d.currentLine()), Type: obj.NodeInclude, Name: nameTok.Text})

	d.fileNames = append(d.fileNames, nameTok.Text)
	newIndex := uint32(len(d.fileNames) - 1)
	d.fileIndexStack = append(d.fileIndexStack, d.fileIndex)
	d.fileIndex = newIndex

	d.lx.Stack().Push(&lexer.Frame{Kind: lexer.FrameInclude, Name: nameTok.Text, Lines: lines, BaseLine: 1})
	d.fileIndexDepth = append(d.fileIndexDepth, d.lx.Stack().Len())
	return nil
}

// --- ASSERT/PRINT/WARN/FAIL --------------------------------------------------

func (d *Driver) handleAssert() error {
	severity := obj.AssertError
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokIdent {
		matched := true
		switch strings.ToUpper(nt.Text) {
		case "WARN":
			severity = obj.AssertWarn
		case "ERROR":
			severity = obj.AssertError
		case "FATAL":
			severity = obj.AssertFatal
		default:
			matched = false
		}
		if matched {
			d.nextTok()
			if _, err := d.expect(lexer.TokComma); err != nil {
				return err
			}
		}
	}

	n, err := d.parseExpr()
	if err != nil {
		return err
	}

	msg := ""
	mt, err := d.peekTok()
	if err != nil {
		return err
	}
	if mt.Kind == lexer.TokComma {
		d.nextTok()
		st, err := d.expect(lexer.TokString)
		if err != nil {
			return err
		}
		msg = st.Text
	}
	if err := d.expectNewline(); err != nil {
		return err
	}

	v, ok, err := expr.Eval(n, asmResolver{d})
	if err != nil {
		return err
	}
	if ok {
		if v == 0 {
			d.reportAssertFailure(severity, msg)
		}
		return nil
	}

	rpn, err := expr.ToRPN(n, d.symbolIndexer())
	if err != nil {
		return err
	}
	d.assertions = append(d.assertions, obj.Assertion{
		Patch:    obj.Patch{Type: obj.PatchByte, RPN: rpn, FileIndex: d.fileIndex, Line: uint32(d.currentLine())},
		Severity: severity, Message: msg,
	})
	return nil
}

func (d *Driver) reportAssertFailure(sev obj.AssertionType, msg string) {
	kind := diag.Error
	if sev == obj.AssertWarn {
		kind = diag.Warning
	}
	if sev == obj.AssertFatal {
		kind = diag.Fatal
	}
	d.bag.Report(diag.Diagnostic{Kind: kind, Category: diag.CategoryAssert, Location: d.lx.Location(), Message: msg})
}

func (d *Driver) parsePrintArgs() ([]string, error) {
	var parts []string
	for {
		t, err := d.peekTok()
		if err != nil {
			return nil, err
		}
		if t.Kind == lexer.TokNewline || t.Kind == lexer.TokEOF {
			break
		}
		if t.Kind == lexer.TokString {
			d.nextTok()
			parts = append(parts, t.Text)
		} else {
			n, err := d.parseExpr()
			if err != nil {
				return nil, err
			}
			v, ok, err := expr.Eval(n, asmResolver{d})
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("PRINT/WARN/FAIL argument must be a compile-time constant")
			}
			parts = append(parts, strconv.Itoa(int(v)))
		}
		nt, err := d.peekTok()
		if err != nil {
			return nil, err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	if err := d.expectNewline(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (d *Driver) handlePrint(kw string) error {
	parts, err := d.parsePrintArgs()
	if err != nil {
		return err
	}
	msg := strings.Join(parts, "")
	if kw == "PRINTLN" {
		msg += "\n"
	}
	d.bag.Report(diag.Diagnostic{Kind: diag.Warning, Category: diag.CategoryUser, Location: d.lx.Location(), Message: msg})
	return nil
}

func (d *Driver) handleWarn() error {
	parts, err := d.parsePrintArgs()
	if err != nil {
		return err
	}
	d.bag.Warnf(d.lx.Location(), diag.CategoryUser, "%s", strings.Join(parts, ""))
	return nil
}

func (d *Driver) handleFail() error {
	parts, err := d.parsePrintArgs()
	if err != nil {
		return err
	}
	msg := strings.Join(parts, "")
	d.bag.Fatalf(d.lx.Location(), "%s", msg)
	return fmt.Errorf("FAIL: %s", msg)
}

// --- charmaps ----------------------------------------------------------------

func (d *Driver) handleNewCharmap() error {
	nameTok, err := d.expect(lexer.TokString)
	if err != nil {
		return err
	}
	clone := ""
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokComma {
		d.nextTok()
		ct, err := d.expect(lexer.TokString)
		if err != nil {
			return err
		}
		clone = ct.Text
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	_, err = d.charmaps.Define(nameTok.Text, clone)
	return err
}

func (d *Driver) handleSetCharmap() error {
	nameTok, err := d.expect(lexer.TokString)
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	return d.charmaps.SetActive(nameTok.Text)
}

func (d *Driver) handleCharmapEntry() error {
	seqTok, err := d.expect(lexer.TokString)
	if err != nil {
		return err
	}
	if _, err := d.expect(lexer.TokComma); err != nil {
		return err
	}
	var out []byte
	for {
		v, err := d.constExpr("CHARMAP byte value")
		if err != nil {
			return err
		}
		out = append(out, byte(v))
		nt, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	d.charmaps.Active().Add(seqTok.Text, out)
	return nil
}

// OPT's real flag grammar (rgbds-style "-O"/"Wn"/"-O-") is large; this
// directive engine only tracks whether the HRAM-load peephole is active,
// which is all SPEC_FULL's single documented peephole needs.
func (d *Driver) handleOpt() error {
	for {
		t, err := d.nextTok()
		if err != nil {
			return err
		}
		if t.Kind == lexer.TokNewline || t.Kind == lexer.TokEOF {
			break
		}
		if strings.Contains(strings.ToUpper(t.Text), "O") {
			d.optimize = true
		}
	}
	return nil
}

// --- MACRO ----------------------------------------------------------------

func (d *Driver) handleMacroDef(name string) error {
	if err := d.expectNewline(); err != nil {
		return err
	}
	body, _, err := d.lx.CaptureBody([]string{"MACRO"}, []string{"ENDM"})
	if err != nil {
		return err
	}
	return d.syms.Define(symbol.Symbol{Name: name, Kind: symbol.KindMacro, MacroBody: body, FileName: d.currentFileName(), Line: d.currentLine()})
}

// invokeMacro parses a comma-separated, one-token-per-argument call (a
// documented scope simplification from rgbds' raw-text macro arguments —
// see DESIGN.md) and pushes the macro's captured body as a replay frame.
func (d *Driver) invokeMacro(sym *symbol.Symbol) error {
	var args []string
	for {
		nt, err := d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokNewline || nt.Kind == lexer.TokEOF {
			break
		}
		t, err := d.nextTok()
		if err != nil {
			return err
		}
		args = append(args, t.Text)
		nt, err = d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	if err := d.expectNewline(); err != nil {
		return err
	}

	d.nodes = append(d.nodes, obj.Node{ParentIndex: int32(len(d.nodes) - 1), ParentLine: uint32(d.currentLine()), Type: obj.NodeMacro, Name: sym.Name})

	d.reptCounter++
	uid := fmt.Sprintf("%d", d.reptCounter)
	d.lx.Stack().Push(&lexer.Frame{Kind: lexer.FrameMacro, Name: "MACRO " + sym.Name, Lines: append([]string(nil), sym.MacroBody...), MacroArgs: args, ReptUniqueID: uid})
	return nil
}

// --- REPT/FOR ---------------------------------------------------------------

func (d *Driver) handleRept() error {
	v, err := d.constExpr("REPT count")
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	body, _, err := d.lx.CaptureBody([]string{"REPT", "FOR"}, []string{"ENDR"})
	if err != nil {
		return err
	}
	if v <= 0 {
		return nil
	}

	d.nodes = append(d.nodes, obj.Node{ParentIndex: int32(len(d.nodes) - 1), ParentLine: uint32(d.currentLine()), Type: obj.NodeRept, Name: "REPT"})

	d.reptCounter++
	uid := fmt.Sprintf("%d", d.reptCounter)
	d.lx.Stack().Push(&lexer.Frame{
		Kind: lexer.FrameRept, Name: "REPT",
		Lines: append([]string(nil), body...), ReptBody: body,
		ReptRemaining: int(v) - 1, ReptUniqueID: uid,
	})
	return nil
}

func (d *Driver) handleFor() error {
	varTok, err := d.expect(lexer.TokIdent)
	if err != nil {
		return err
	}
	if _, err := d.expect(lexer.TokComma); err != nil {
		return err
	}

	a, err := d.constExpr("FOR bound")
	if err != nil {
		return err
	}
	start, stop, step := int32(0), a, int32(1)

	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind == lexer.TokComma {
		d.nextTok()
		start = a
		stop, err = d.constExpr("FOR stop")
		if err != nil {
			return err
		}
		nt, err = d.peekTok()
		if err != nil {
			return err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			step, err = d.constExpr("FOR step")
			if err != nil {
				return err
			}
		}
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	if step == 0 {
		return fmt.Errorf("FOR step must not be zero")
	}

	body, _, err := d.lx.CaptureBody([]string{"REPT", "FOR"}, []string{"ENDR"})
	if err != nil {
		return err
	}

	count := 0
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		count++
	}
	if count == 0 {
		return nil
	}

	if err := d.syms.Define(symbol.Symbol{Name: varTok.Text, Kind: symbol.KindVar, Value: start, HasValue: true}); err != nil {
		return err
	}

	d.nodes = append(d.nodes, obj.Node{ParentIndex: int32(len(d.nodes) - 1), ParentLine: uint32(d.currentLine()), Type: obj.NodeRept, Name: "FOR " + varTok.Text})

	d.reptCounter++
	uid := fmt.Sprintf("%d", d.reptCounter)
	d.lx.Stack().Push(&lexer.Frame{
		Kind: lexer.FrameRept, Name: "FOR " + varTok.Text,
		Lines: append([]string(nil), body...), ReptBody: body,
		ReptRemaining: count - 1, ReptUniqueID: uid,
		ForVar: varTok.Text, ForValue: start, ForStep: step, ForStop: stop,
	})
	return nil
}

// --- instructions -----------------------------------------------------------

// handleBreak exits the nearest enclosing REPT/FOR loop immediately,
// discarding its remaining iterations (spec.md §4.1's BREAK).
func (d *Driver) handleBreak() error {
	if err := d.expectNewline(); err != nil {
		return err
	}
	if !d.lx.Stack().Break() {
		return fmt.Errorf("BREAK outside REPT/FOR")
	}
	return nil
}

// handleShift rotates the nearest enclosing MACRO invocation's positional
// arguments left by n (default 1), per spec.md §4.1's SHIFT [n].
func (d *Driver) handleShift() error {
	n := int32(1)
	nt, err := d.peekTok()
	if err != nil {
		return err
	}
	if nt.Kind != lexer.TokNewline && nt.Kind != lexer.TokEOF {
		n, err = d.constExpr("SHIFT count")
		if err != nil {
			return err
		}
	}
	if err := d.expectNewline(); err != nil {
		return err
	}
	if !d.lx.Stack().Shift(int(n)) {
		return fmt.Errorf("SHIFT outside MACRO")
	}
	return nil
}

func (d *Driver) handleInstruction(mnemonic string) error {
	ops, err := d.parseOperandList(mnemonic)
	if err != nil {
		return err
	}
	if err := d.expectNewline(); err != nil {
		return err
	}

	r := asmResolver{d}
	pc, _ := r.ResolvePC()
	enc, err := Encode(mnemonic, ops, pc, r, d.symbolIndexer())
	if err != nil {
		return err
	}
	if err := d.sections.EmitBytes(enc.Bytes); err != nil {
		return err
	}
	if enc.Patch != nil {
		p := *enc.Patch
		p.FileIndex = d.fileIndex
		p.Line = uint32(d.currentLine())
		d.sections.AddPatch(p)
	}
	return nil
}

func (d *Driver) parseOperandList(mnemonic string) ([]Operand, error) {
	nt, err := d.peekTok()
	if err != nil {
		return nil, err
	}
	if nt.Kind == lexer.TokNewline || nt.Kind == lexer.TokEOF {
		return nil, nil
	}

	condMnemonic := mnemonic == "JP" || mnemonic == "JR" || mnemonic == "CALL" || mnemonic == "RET"
	var ops []Operand
	for {
		op, err := d.parseOperand(condMnemonic && len(ops) == 0)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		nt, err := d.peekTok()
		if err != nil {
			return nil, err
		}
		if nt.Kind == lexer.TokComma {
			d.nextTok()
			continue
		}
		break
	}
	return ops, nil
}

func (d *Driver) parseOperand(allowCond bool) (Operand, error) {
	t, err := d.peekTok()
	if err != nil {
		return Operand{}, err
	}

	if t.Kind == lexer.TokLBracket {
		d.nextTok()
		inner, err := d.peekTok()
		if err != nil {
			return Operand{}, err
		}
		if inner.Kind == lexer.TokIdent {
			switch strings.ToUpper(inner.Text) {
			case "HL":
				d.nextTok()
				if _, err := d.expect(lexer.TokRBracket); err != nil {
					return Operand{}, err
				}
				return Operand{Kind: OperandMemHL}, nil
			case "BC":
				d.nextTok()
				if _, err := d.expect(lexer.TokRBracket); err != nil {
					return Operand{}, err
				}
				return Operand{Kind: OperandMemBC}, nil
			case "DE":
				d.nextTok()
				if _, err := d.expect(lexer.TokRBracket); err != nil {
					return Operand{}, err
				}
				return Operand{Kind: OperandMemDE}, nil
			case "C":
				d.nextTok()
				if _, err := d.expect(lexer.TokRBracket); err != nil {
					return Operand{}, err
				}
				return Operand{Kind: OperandMemC}, nil
			}
		}
		n, err := d.parseExpr()
		if err != nil {
			return Operand{}, err
		}
		if _, err := d.expect(lexer.TokRBracket); err != nil {
			return Operand{}, err
		}
		return Operand{Kind: OperandMemImm, Expr: n}, nil
	}

	if t.Kind == lexer.TokIdent {
		upper := strings.ToUpper(t.Text)
		if allowCond {
			switch upper {
			case "NZ", "Z", "NC", "C":
				d.nextTok()
				return Operand{Kind: OperandCond, Reg: upper}, nil
			}
		}
		if _, ok := reg8Index[upper]; ok {
			d.nextTok()
			return Operand{Kind: OperandReg8, Reg: upper}, nil
		}
		if _, ok := reg16Index[upper]; ok {
			d.nextTok()
			return Operand{Kind: OperandReg16, Reg: upper}, nil
		}
		if upper == "AF" {
			d.nextTok()
			return Operand{Kind: OperandReg16, Reg: "AF"}, nil
		}
	}

	n, err := d.parseExpr()
	if err != nil {
		return Operand{}, err
	}
	return Operand{Kind: OperandImm, Expr: n}, nil
}

// --- resolver / RPN indexing -------------------------------------------------

// asmResolver implements expr.Resolver against the Driver's live symbol
// table and section builder, deferring (ok=false) whatever a floating-org
// section or an as-yet-unplaced section can't answer yet; the linker
// resolves the rest.
type asmResolver struct{ d *Driver }

func (r asmResolver) ResolveSymbol(name string) (int32, bool, error) {
	s, err := r.d.syms.Lookup(name)
	if err != nil {
		// A name that simply isn't defined yet is an ordinary forward
		// reference (to a label later in this file, or a genuine
		// cross-module import) — defer to a patch rather than failing the
		// whole expression. A real typo surfaces later as an unresolved
		// patch at link time.
		if errors.Is(err, symbol.ErrUndefined) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if s.Kind == symbol.KindLabel {
		if !s.HasValue {
			return 0, false, nil
		}
		return s.Value, true, nil
	}
	if s.Kind == symbol.KindRef {
		return 0, false, nil
	}
	if !s.HasValue {
		return 0, false, fmt.Errorf("%q has no numeric value", name)
	}
	return s.Value, true, nil
}

func (r asmResolver) ResolvePC() (int32, bool) {
	sec := r.d.sections.Active()
	if sec == nil || sec.Org == obj.FloatingOrg {
		return 0, false
	}
	return sec.Org + int32(r.d.sections.Offset()), true
}

func (r asmResolver) SectionSize(name string) (int32, bool, error) {
	s, ok := r.d.sections.ByName(name)
	if !ok {
		return 0, false, fmt.Errorf("unknown section %q", name)
	}
	return int32(s.Size), true, nil
}

func (r asmResolver) SectionStart(name string) (int32, bool, error) {
	s, ok := r.d.sections.ByName(name)
	if !ok {
		return 0, false, fmt.Errorf("unknown section %q", name)
	}
	if s.Org == obj.FloatingOrg {
		return 0, false, nil
	}
	return s.Org, true, nil
}

func (r asmResolver) SectionBank(name string) (int32, bool, error) {
	s, ok := r.d.sections.ByName(name)
	if !ok {
		return 0, false, fmt.Errorf("unknown section %q", name)
	}
	if s.Bank == obj.FloatingBank {
		return 0, false, nil
	}
	return s.Bank, true, nil
}

func (r asmResolver) CurrentBank() (int32, bool) {
	sec := r.d.sections.Active()
	if sec == nil || sec.Bank == obj.FloatingBank {
		return 0, false
	}
	return sec.Bank, true
}

// symbolIndexer returns an expr.SymbolIndexer that resolves ordinary names
// against the object module's eventual symbol table, auto-importing an
// undefined reference rather than erroring (the documented replacement for
// an explicit EXTERN directive — see DESIGN.md), and resolves "@" to a
// synthetic per-occurrence symbol carrying the PC this particular patch
// site was written at.
func (d *Driver) symbolIndexer() expr.SymbolIndexer {
	return func(name string) (uint32, error) {
		if name == "@" {
			sec := d.sections.Active()
			sectionID := int32(-1)
			value := int32(d.sections.Offset())
			if sec != nil {
				sectionID = d.sections.IndexOf(sec)
				if sec.Org != obj.FloatingOrg {
					value = sec.Org + int32(d.sections.Offset())
				}
			}
			sym := obj.Symbol{
				Name: fmt.Sprintf("@%d", len(d.pcSymbols)), Type: obj.SymLocal,
				FileIndex: d.fileIndex, Line: uint32(d.currentLine()),
				SectionID: sectionID, Value: value,
			}
			d.pcSymbols = append(d.pcSymbols, sym)
			return d.symbolTableIndex(sym.Name, sym), nil
		}

		s, err := d.syms.Lookup(name)
		if err != nil {
			// Auto-import: a name that resolves to nothing is treated as an
			// external reference the linker must supply, rather than an
			// assembly-time error.
			ref := obj.Symbol{Name: name, Type: obj.SymImport, FileIndex: d.fileIndex, Line: uint32(d.currentLine()), SectionID: -1}
			return d.symbolTableIndex(name, ref), nil
		}
		return d.symbolTableIndex(name, symbol.ToObjSymbol(s, d.fileIndexOf(s.FileName)))
	}
}

// fileIndexOf maps a symbol's recorded defining file name back to its
// index in fileNames, for stamping an obj.Symbol with the file it was
// actually declared in rather than whatever file is current when it's
// first referenced.
func (d *Driver) fileIndexOf(name string) uint32 {
	for i, n := range d.fileNames {
		if n == name {
			return uint32(i)
		}
	}
	return d.fileIndex
}

// registerExportedSymbols guarantees every EXPORTed symbol has an entry in
// objSymbols even if this file never references it itself — the common
// case of defining and exporting an entry point another file calls, which
// symbolIndexer's reference-driven accumulation alone would never reach.
func (d *Driver) registerExportedSymbols() {
	for _, s := range d.syms.Exported() {
		d.symbolTableIndex(s.Name, symbol.ToObjSymbol(s, d.fileIndexOf(s.FileName)))
	}
}

// symbolTableIndex returns name's index in objSymbols, appending sym under a
// new index the first time name is seen, so the same name (an ordinary
// re-reference, not a pcSymbol) is never duplicated in the table.
func (d *Driver) symbolTableIndex(name string, sym obj.Symbol) uint32 {
	if idx, ok := d.symbolIndexMap[name]; ok {
		return idx
	}
	idx := uint32(len(d.objSymbols))
	d.objSymbols = append(d.objSymbols, sym)
	d.symbolIndexMap[name] = idx
	return idx
}

// --- module assembly ---------------------------------------------------------

// resolveForwardImports reconciles symbolIndexer's auto-import guess against
// what the symbol table actually knows by the end of the file: a name that
// turned out to be an ordinary later-in-file label (the common case for a
// forward `call`/`jp`) is rewritten from a cross-module import into a local
// reference, so the linker resolves the patch within this module instead of
// expecting another module to export the name.
func (d *Driver) resolveForwardImports() {
	for i, sym := range d.objSymbols {
		if sym.Type != obj.SymImport {
			continue
		}
		if s, err := d.syms.Lookup(sym.Name); err == nil {
			resolved := symbol.ToObjSymbol(s, sym.FileIndex)
			resolved.Line = sym.Line
			d.objSymbols[i] = resolved
		}
	}
}

func (d *Driver) buildModule() *obj.Module {
	d.registerExportedSymbols()
	d.resolveForwardImports()

	sections := make([]obj.Section, len(d.sections.Sections()))
	for i, s := range d.sections.Sections() {
		if d.optimize {
			section.RewriteHRAMLoads(s)
		}
		sections[i] = *s
	}

	return &obj.Module{
		Version:    obj.Version,
		FileNames:  d.fileNames,
		Nodes:      d.nodes,
		Symbols:    d.objSymbols,
		Sections:   sections,
		Assertions: d.assertions,
	}
}
