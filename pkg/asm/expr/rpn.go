package expr

import (
	"encoding/binary"
	"fmt"

	"github.com/brackenfield/gbtk/pkg/obj"
)

// SymbolIndexer maps a symbol name to its index in the object module's
// symbol table, for encoding KindSymbol nodes as RPNSym operands.
type SymbolIndexer func(name string) (uint32, error)

// ToRPN serializes n to the postfix byte-code patches carry in the object
// file (spec.md §6), for the part of an expression that could not be
// folded at assembly time. PC pseudo-symbol references go out as an
// ordinary RPNSym against the "@" symbol the section builder maintains.
func ToRPN(n *Node, index SymbolIndexer) ([]byte, error) {
	var out []byte
	if err := emit(n, index, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func emit(n *Node, index SymbolIndexer, out *[]byte) error {
	switch n.Kind {
	case KindConst:
		*out = append(*out, obj.RPNConst)
		*out = appendS32(*out, n.Const)
		return nil

	case KindPC:
		idx, err := index("@")
		if err != nil {
			return err
		}
		*out = append(*out, obj.RPNSym)
		*out = appendU32(*out, idx)
		return nil

	case KindSymbol:
		idx, err := index(n.Symbol)
		if err != nil {
			return err
		}
		*out = append(*out, obj.RPNSym)
		*out = appendU32(*out, idx)
		return nil

	case KindUnary:
		if err := emit(n.Left, index, out); err != nil {
			return err
		}
		op, err := unaryOpcode(n.Op)
		if err != nil {
			return err
		}
		*out = append(*out, op)
		return nil

	case KindBinary:
		if err := emit(n.Left, index, out); err != nil {
			return err
		}
		if err := emit(n.Right, index, out); err != nil {
			return err
		}
		op, err := binaryOpcode(n.Op)
		if err != nil {
			return err
		}
		*out = append(*out, op)
		return nil

	case KindIntrinsic:
		return emitIntrinsic(n, index, out)

	default:
		return fmt.Errorf("cannot serialize expression node kind %d to RPN", n.Kind)
	}
}

func emitIntrinsic(n *Node, index SymbolIndexer, out *[]byte) error {
	switch n.IntrinsicName {
	case "BANK":
		if len(n.Args) == 1 && n.Args[0].Kind == KindSymbol {
			if n.Args[0].Symbol == "@" {
				*out = append(*out, obj.RPNBankSelf)
				return nil
			}
			idx, err := index(n.Args[0].Symbol)
			if err != nil {
				return err
			}
			*out = append(*out, obj.RPNBankSym)
			*out = appendU32(*out, idx)
			return nil
		}
		return fmt.Errorf("BANK: argument must be a symbol reference")

	case "SIZEOF", "STARTOF":
		name, err := literalSectionName(n)
		if err != nil {
			return err
		}
		if n.IntrinsicName == "SIZEOF" {
			*out = append(*out, obj.RPNSizeofSect)
		} else {
			*out = append(*out, obj.RPNStartofSect)
		}
		*out = append(*out, []byte(name)...)
		*out = append(*out, 0)
		return nil

	default:
		return fmt.Errorf("intrinsic %q cannot be deferred to the linker; fold it at assembly time", n.IntrinsicName)
	}
}

func unaryOpcode(op Op) (byte, error) {
	switch op {
	case OpNeg:
		return obj.RPNNeg, nil
	case OpNot:
		return obj.RPNNot, nil
	case OpLogNot:
		return obj.RPNLogNot, nil
	default:
		return 0, fmt.Errorf("no RPN opcode for unary operator %d", op)
	}
}

func binaryOpcode(op Op) (byte, error) {
	switch op {
	case OpAdd:
		return obj.RPNAdd, nil
	case OpSub:
		return obj.RPNSub, nil
	case OpMul:
		return obj.RPNMul, nil
	case OpDiv:
		return obj.RPNDiv, nil
	case OpMod:
		return obj.RPNMod, nil
	case OpExp:
		return obj.RPNExp, nil
	case OpOr:
		return obj.RPNOr, nil
	case OpAnd:
		return obj.RPNAnd, nil
	case OpXor:
		return obj.RPNXor, nil
	case OpLogAnd:
		return obj.RPNLogAnd, nil
	case OpLogOr:
		return obj.RPNLogOr, nil
	case OpEq:
		return obj.RPNLogEq, nil
	case OpNe:
		return obj.RPNLogNe, nil
	case OpGt:
		return obj.RPNLogGt, nil
	case OpLt:
		return obj.RPNLogLt, nil
	case OpGe:
		return obj.RPNLogGe, nil
	case OpLe:
		return obj.RPNLogLe, nil
	case OpShl:
		return obj.RPNShl, nil
	case OpShr:
		return obj.RPNShr, nil
	case OpUShr:
		return obj.RPNUShr, nil
	default:
		return 0, fmt.Errorf("no RPN opcode for binary operator %d", op)
	}
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendS32(b []byte, v int32) []byte {
	return appendU32(b, uint32(v))
}
