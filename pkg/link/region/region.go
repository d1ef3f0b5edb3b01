// Package region describes the address windows and bank ranges each
// section type may be placed in, and lets a YAML file override the
// built-in defaults (spec.md §4.7/§10).
package region

import (
	"fmt"
	"os"

	"github.com/brackenfield/gbtk/pkg/obj"
	"gopkg.in/yaml.v3"
)

// Window is one section type's placement constraints: an inclusive
// address range and an inclusive bank range. BankLast of -1 means "no
// fixed upper bound" — the linker may create banks on demand (ROMX, SRAM).
type Window struct {
	Type      obj.SectionType
	AddrStart int32
	AddrEnd   int32
	BankFirst int32
	BankLast  int32
}

// Size is the window's address span in bytes.
func (w Window) Size() int32 { return w.AddrEnd - w.AddrStart + 1 }

// Unbounded reports whether new banks may be created past BankLast.
func (w Window) Unbounded() bool { return w.BankLast < w.BankFirst }

// Table is the full set of per-type windows, keyed by SectionType.
type Table map[obj.SectionType]Window

// Default is the built-in window table (spec.md §4.7's "Predefined region
// windows"), assuming CGB-capable bank ranges for VRAM/WRAMX — the wider
// of the two hardware targets, since a DMG-only build simply never places
// a section in bank 1.
func Default() Table {
	return Table{
		obj.ROM0:  {Type: obj.ROM0, AddrStart: 0x0000, AddrEnd: 0x3FFF, BankFirst: 0, BankLast: 0},
		obj.ROMX:  {Type: obj.ROMX, AddrStart: 0x4000, AddrEnd: 0x7FFF, BankFirst: 1, BankLast: -1},
		obj.VRAM:  {Type: obj.VRAM, AddrStart: 0x8000, AddrEnd: 0x9FFF, BankFirst: 0, BankLast: 1},
		obj.SRAM:  {Type: obj.SRAM, AddrStart: 0xA000, AddrEnd: 0xBFFF, BankFirst: 0, BankLast: -1},
		obj.WRAM0: {Type: obj.WRAM0, AddrStart: 0xC000, AddrEnd: 0xCFFF, BankFirst: 0, BankLast: 0},
		obj.WRAMX: {Type: obj.WRAMX, AddrStart: 0xD000, AddrEnd: 0xDFFF, BankFirst: 1, BankLast: 7},
		obj.OAM:   {Type: obj.OAM, AddrStart: 0xFE00, AddrEnd: 0xFE9F, BankFirst: 0, BankLast: 0},
		obj.HRAM:  {Type: obj.HRAM, AddrStart: 0xFF80, AddrEnd: 0xFFFE, BankFirst: 0, BankLast: 0},
	}
}

// override is the YAML document shape for a region override file: a list
// of windows keyed by the section type's string name, only the fields
// present are applied.
type override struct {
	Type      string `yaml:"type"`
	AddrStart *int32 `yaml:"addrStart"`
	AddrEnd   *int32 `yaml:"addrEnd"`
	BankFirst *int32 `yaml:"bankFirst"`
	BankLast  *int32 `yaml:"bankLast"`
}

var typeNames = map[string]obj.SectionType{
	"ROM0": obj.ROM0, "ROMX": obj.ROMX, "VRAM": obj.VRAM, "SRAM": obj.SRAM,
	"WRAM0": obj.WRAM0, "WRAMX": obj.WRAMX, "HRAM": obj.HRAM, "OAM": obj.OAM,
}

// LoadOverrides reads a region override file and applies it on top of
// Default(), returning the merged table. A malformed or unknown section
// type name is an error rather than a silent skip, since a typo here
// would otherwise place code in the wrong place without warning.
func LoadOverrides(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region override file: %w", err)
	}

	var overrides []override
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing region override file: %w", err)
	}

	table := Default()
	for _, o := range overrides {
		typ, ok := typeNames[o.Type]
		if !ok {
			return nil, fmt.Errorf("region override: unknown section type %q", o.Type)
		}
		w := table[typ]
		if o.AddrStart != nil {
			w.AddrStart = *o.AddrStart
		}
		if o.AddrEnd != nil {
			w.AddrEnd = *o.AddrEnd
		}
		if o.BankFirst != nil {
			w.BankFirst = *o.BankFirst
		}
		if o.BankLast != nil {
			w.BankLast = *o.BankLast
		}
		table[typ] = w
	}
	return table, nil
}
