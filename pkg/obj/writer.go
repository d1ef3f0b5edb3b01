package obj

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Write serializes m to w in the on-disk object format (spec.md §6):
// magic, version, then the file name table, node table, symbol table,
// section table (each section's patches inline), and assertion table, all
// little-endian with NUL-terminated strings, mirroring the teacher's
// programfilewriter.go layout.
func Write(w io.Writer, m *Module) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Magic); err != nil {
		return err
	}
	if err := writeU32(bw, m.Version); err != nil {
		return err
	}

	if err := writeU32(bw, uint32(len(m.FileNames))); err != nil {
		return err
	}
	for _, name := range m.FileNames {
		if err := writeCString(bw, name); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(m.Nodes))); err != nil {
		return err
	}
	for _, n := range m.Nodes {
		if err := writeNode(bw, n); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(m.Symbols))); err != nil {
		return err
	}
	for _, s := range m.Symbols {
		if err := writeSymbol(bw, s); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(m.Sections))); err != nil {
		return err
	}
	for _, s := range m.Sections {
		if err := writeSection(bw, s); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(m.Assertions))); err != nil {
		return err
	}
	for _, a := range m.Assertions {
		if err := writePatch(bw, a.Patch); err != nil {
			return err
		}
		if err := bw.WriteByte(byte(a.Severity)); err != nil {
			return err
		}
		if err := writeCString(bw, a.Message); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeNode(w *bufio.Writer, n Node) error {
	if err := writeS32(w, n.ParentIndex); err != nil {
		return err
	}
	if err := writeU32(w, n.ParentLine); err != nil {
		return err
	}
	if err := w.WriteByte(byte(n.Type)); err != nil {
		return err
	}
	if err := writeCString(w, n.Name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(n.ReptDepth))); err != nil {
		return err
	}
	for _, d := range n.ReptDepth {
		if err := writeU32(w, d); err != nil {
			return err
		}
	}
	return nil
}

func writeSymbol(w *bufio.Writer, s Symbol) error {
	if err := writeCString(w, s.Name); err != nil {
		return err
	}
	if err := w.WriteByte(byte(s.Type)); err != nil {
		return err
	}
	if err := writeU32(w, s.FileIndex); err != nil {
		return err
	}
	if err := writeU32(w, s.Line); err != nil {
		return err
	}
	if err := writeS32(w, s.SectionID); err != nil {
		return err
	}
	return writeS32(w, s.Value)
}

func writeSection(w *bufio.Writer, s Section) error {
	if err := writeCString(w, s.Name); err != nil {
		return err
	}
	typeByte := byte(s.Type) | byte(s.Modifier)<<6
	if err := w.WriteByte(typeByte); err != nil {
		return err
	}
	if err := writeU32(w, s.Size); err != nil {
		return err
	}
	if err := writeS32(w, s.Org); err != nil {
		return err
	}
	if err := writeS32(w, s.Bank); err != nil {
		return err
	}
	if err := w.WriteByte(s.AlignLog2); err != nil {
		return err
	}
	if err := writeU32(w, s.AlignOfs); err != nil {
		return err
	}

	if s.Type.IsROM() {
		if err := writeU32(w, uint32(len(s.Data))); err != nil {
			return err
		}
		if _, err := w.Write(s.Data); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(s.Patches))); err != nil {
		return err
	}
	for _, p := range s.Patches {
		if err := writePatch(w, p); err != nil {
			return err
		}
	}
	return nil
}

func writePatch(w *bufio.Writer, p Patch) error {
	if err := writeU32(w, p.FileIndex); err != nil {
		return err
	}
	if err := writeU32(w, p.Line); err != nil {
		return err
	}
	if err := writeU32(w, p.Offset); err != nil {
		return err
	}
	if err := writeS32(w, p.PCSectionID); err != nil {
		return err
	}
	if err := writeU32(w, p.PCOffset); err != nil {
		return err
	}
	if err := w.WriteByte(byte(p.Type)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(p.RPN))); err != nil {
		return err
	}
	_, err := w.Write(p.RPN)
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeS32(w io.Writer, v int32) error {
	return writeU32(w, uint32(v))
}

func writeCString(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	return w.WriteByte(0)
}
