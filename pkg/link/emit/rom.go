// Package emit implements C8: walking a linked link.Result into a ROM
// image, a symbol file, and a map file (spec.md §4.8).
package emit

import (
	"fmt"
	"io"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/obj"
)

const bankSize = 0x4000

// ROMOptions configures the ROM image writer.
type ROMOptions struct {
	// Pad fills every byte not covered by a placed section or an overlay.
	Pad byte
	// ThirtyTwoKiB builds a flat, non-banked 32KiB image (ROM0 and the
	// single ROMX bank occupy one contiguous address space with no bank
	// switching), per spec.md §4.8.
	ThirtyTwoKiB bool
	// Overlay, if non-nil, supplies the base image instead of Pad: it must
	// be a multiple of bankSize and at least two banks, and exactly two
	// banks when ThirtyTwoKiB is set.
	Overlay []byte
}

// WriteROM assembles res's ROM0/ROMX sections into a cartridge image and
// writes it to w.
func WriteROM(w io.Writer, res *link.Result, opts ROMOptions) error {
	buf, err := buildROM(res, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func buildROM(res *link.Result, opts ROMOptions) ([]byte, error) {
	maxBank := int32(0)
	for _, s := range res.Sections {
		if s.Type == obj.ROMX && s.Bank > maxBank {
			maxBank = s.Bank
		}
	}

	size := int(maxBank+1) * bankSize
	if opts.ThirtyTwoKiB && size < 2*bankSize {
		size = 2 * bankSize
	}

	var buf []byte
	if opts.Overlay != nil {
		if len(opts.Overlay)%bankSize != 0 || len(opts.Overlay) < 2*bankSize {
			return nil, fmt.Errorf("overlay file must be a multiple of $%04X bytes and at least two banks", bankSize)
		}
		if opts.ThirtyTwoKiB && len(opts.Overlay) != 2*bankSize {
			return nil, fmt.Errorf("overlay file must be exactly two banks in 32KiB mode")
		}
		buf = append([]byte(nil), opts.Overlay...)
		if len(buf) > size {
			size = len(buf)
		}
	}
	if len(buf) < size {
		padded := make([]byte, size)
		copy(padded, buf)
		for i := len(buf); i < size; i++ {
			padded[i] = opts.Pad
		}
		buf = padded
	}

	for _, s := range res.Sections {
		if !s.Type.IsROM() || len(s.Data) == 0 {
			continue
		}
		fileOffset := romFileOffset(s, opts.ThirtyTwoKiB)
		if fileOffset+len(s.Data) > len(buf) {
			return nil, fmt.Errorf("section %q at file offset $%X overruns the %d-byte ROM image", s.Name, fileOffset, len(buf))
		}
		copy(buf[fileOffset:], s.Data)
	}

	return buf, nil
}

// romFileOffset converts a placed section's (bank, org) into a byte offset
// within the flat ROM image: ROM0 sits at its address directly; a ROMX
// bank's window is relocated after every lower bank's full 0x4000 span.
func romFileOffset(s link.PlacedSection, thirtyTwoKiB bool) int {
	if s.Type == obj.ROM0 || thirtyTwoKiB {
		return int(s.Org)
	}
	return int(s.Bank)*bankSize + int(s.Org-bankSize)
}
