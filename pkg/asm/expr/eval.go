package expr

import "fmt"

// Resolver looks up a symbol's numeric value for evaluation. A symbol that
// is known to exist but not yet assigned a value (a forward reference that
// will be resolved by the linker) should return ok=false with a nil error;
// a genuinely undefined name should return an error.
type Resolver interface {
	ResolveSymbol(name string) (value int32, ok bool, err error)
	ResolvePC() (value int32, ok bool)
	SectionSize(name string) (size int32, ok bool, err error)
	SectionStart(name string) (addr int32, ok bool, err error)
	SectionBank(name string) (bank int32, ok bool, err error)
	CurrentBank() (bank int32, ok bool)
}

// Eval attempts to fully evaluate n against r. ok is false (with a nil
// error) when evaluation could not complete because it depends on a value
// the linker alone can supply — the caller should then fall back to
// ToRPN to defer the expression as a patch.
func Eval(n *Node, r Resolver) (value int32, ok bool, err error) {
	switch n.Kind {
	case KindConst:
		return n.Const, true, nil

	case KindPC:
		v, ok := r.ResolvePC()
		return v, ok, nil

	case KindSymbol:
		return r.ResolveSymbol(n.Symbol)

	case KindUnary:
		v, ok, err := Eval(n.Left, r)
		if err != nil || !ok {
			return 0, ok, err
		}
		res, err := applyUnary(n.Op, v)
		return res, err == nil, err

	case KindBinary:
		lv, lok, err := Eval(n.Left, r)
		if err != nil {
			return 0, false, err
		}
		rv, rok, err := Eval(n.Right, r)
		if err != nil {
			return 0, false, err
		}
		if !lok || !rok {
			return 0, false, nil
		}
		res, err := applyBinary(n.Op, lv, rv)
		return res, err == nil, err

	case KindIntrinsic:
		return evalIntrinsic(n, r)

	default:
		return 0, false, fmt.Errorf("unhandled expression node kind: %d", n.Kind)
	}
}

// IsConstant reports whether n evaluates without needing the linker, i.e.
// whether DEF()/ISCONST() would report true for it.
func IsConstant(n *Node, r Resolver) bool {
	_, ok, err := Eval(n, r)
	return err == nil && ok
}
