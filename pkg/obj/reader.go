package obj

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Read deserializes an object module from r, the inverse of Write.
func Read(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(magic[:]) != Magic {
		return nil, ErrBadMagic
	}

	version, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, Version)
	}

	m := &Module{Version: version}

	nFiles, err := readU32(br)
	if err != nil {
		return nil, err
	}
	m.FileNames = make([]string, nFiles)
	for i := range m.FileNames {
		if m.FileNames[i], err = readCString(br); err != nil {
			return nil, err
		}
	}

	nNodes, err := readU32(br)
	if err != nil {
		return nil, err
	}
	m.Nodes = make([]Node, nNodes)
	for i := range m.Nodes {
		if m.Nodes[i], err = readNode(br); err != nil {
			return nil, err
		}
	}

	nSyms, err := readU32(br)
	if err != nil {
		return nil, err
	}
	m.Symbols = make([]Symbol, nSyms)
	for i := range m.Symbols {
		if m.Symbols[i], err = readSymbol(br); err != nil {
			return nil, err
		}
	}

	nSections, err := readU32(br)
	if err != nil {
		return nil, err
	}
	m.Sections = make([]Section, nSections)
	for i := range m.Sections {
		if m.Sections[i], err = readSection(br); err != nil {
			return nil, err
		}
	}

	nAsserts, err := readU32(br)
	if err != nil {
		return nil, err
	}
	m.Assertions = make([]Assertion, nAsserts)
	for i := range m.Assertions {
		p, err := readPatch(br)
		if err != nil {
			return nil, err
		}
		sev, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		msg, err := readCString(br)
		if err != nil {
			return nil, err
		}
		m.Assertions[i] = Assertion{Patch: p, Severity: AssertionType(sev), Message: msg}
	}

	return m, nil
}

func readNode(r *bufio.Reader) (Node, error) {
	var n Node
	var err error
	if n.ParentIndex, err = readS32(r); err != nil {
		return n, err
	}
	if n.ParentLine, err = readU32(r); err != nil {
		return n, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return n, err
	}
	n.Type = NodeType(typeByte)
	if n.Name, err = readCString(r); err != nil {
		return n, err
	}
	count, err := readU32(r)
	if err != nil {
		return n, err
	}
	if count > 0 {
		n.ReptDepth = make([]uint32, count)
	}
	for i := range n.ReptDepth {
		if n.ReptDepth[i], err = readU32(r); err != nil {
			return n, err
		}
	}
	return n, nil
}

func readSymbol(r *bufio.Reader) (Symbol, error) {
	var s Symbol
	var err error
	if s.Name, err = readCString(r); err != nil {
		return s, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return s, err
	}
	s.Type = SymbolType(typeByte)
	if s.FileIndex, err = readU32(r); err != nil {
		return s, err
	}
	if s.Line, err = readU32(r); err != nil {
		return s, err
	}
	if s.SectionID, err = readS32(r); err != nil {
		return s, err
	}
	s.Value, err = readS32(r)
	return s, err
}

func readSection(r *bufio.Reader) (Section, error) {
	var s Section
	var err error
	if s.Name, err = readCString(r); err != nil {
		return s, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return s, err
	}
	s.Type = SectionType(typeByte & 0x3f)
	s.Modifier = Modifier(typeByte >> 6)

	if s.Size, err = readU32(r); err != nil {
		return s, err
	}
	if s.Org, err = readS32(r); err != nil {
		return s, err
	}
	if s.Bank, err = readS32(r); err != nil {
		return s, err
	}
	if s.AlignLog2, err = r.ReadByte(); err != nil {
		return s, err
	}
	if s.AlignOfs, err = readU32(r); err != nil {
		return s, err
	}

	if s.Type.IsROM() {
		dataLen, err := readU32(r)
		if err != nil {
			return s, err
		}
		s.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, s.Data); err != nil {
			return s, err
		}
	}

	nPatches, err := readU32(r)
	if err != nil {
		return s, err
	}
	if nPatches > 0 {
		s.Patches = make([]Patch, nPatches)
	}
	for i := range s.Patches {
		if s.Patches[i], err = readPatch(r); err != nil {
			return s, err
		}
	}
	return s, nil
}

func readPatch(r *bufio.Reader) (Patch, error) {
	var p Patch
	var err error
	if p.FileIndex, err = readU32(r); err != nil {
		return p, err
	}
	if p.Line, err = readU32(r); err != nil {
		return p, err
	}
	if p.Offset, err = readU32(r); err != nil {
		return p, err
	}
	if p.PCSectionID, err = readS32(r); err != nil {
		return p, err
	}
	if p.PCOffset, err = readU32(r); err != nil {
		return p, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return p, err
	}
	p.Type = PatchType(typeByte)
	rpnLen, err := readU32(r)
	if err != nil {
		return p, err
	}
	p.RPN = make([]byte, rpnLen)
	_, err = io.ReadFull(r, p.RPN)
	return p, err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readS32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}
