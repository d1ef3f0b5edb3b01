package expr

import (
	"fmt"
	"math"
)

// evalIntrinsic dispatches the built-in functions of spec.md §4.4/§4.5:
// HIGH/LOW (byte extraction), BANK (of a symbol, section, or the current
// section), SIZEOF/STARTOF (of a section), ISCONST/DEF (constancy
// queries), and the fixed-point math library (turns-based trig, POW,
// LOG with an explicit base, ROUND/CEIL/FLOOR).
func evalIntrinsic(n *Node, r Resolver) (int32, bool, error) {
	arg := func(i int) (int32, bool, error) {
		if i >= len(n.Args) {
			return 0, false, fmt.Errorf("%s: missing argument %d", n.IntrinsicName, i)
		}
		return Eval(n.Args[i], r)
	}

	switch n.IntrinsicName {
	case "HIGH":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return (v >> 8) & 0xff, true, nil

	case "LOW":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return v & 0xff, true, nil

	case "BANK":
		if len(n.Args) == 1 && n.Args[0].Kind == KindSymbol {
			if n.Args[0].Symbol == "@" {
				v, ok := r.CurrentBank()
				return v, ok, nil
			}
			if b, ok, err := sectionBankOfSymbol(n.Args[0].Symbol, r); ok || err != nil {
				return b, ok, err
			}
		}
		return 0, false, fmt.Errorf("BANK: argument must be a symbol or section name")

	case "SIZEOF":
		name, err := literalSectionName(n)
		if err != nil {
			return 0, false, err
		}
		return r.SectionSize(name)

	case "STARTOF":
		name, err := literalSectionName(n)
		if err != nil {
			return 0, false, err
		}
		return r.SectionStart(name)

	case "ISCONST", "DEF":
		if len(n.Args) != 1 {
			return 0, false, fmt.Errorf("%s: expects exactly one argument", n.IntrinsicName)
		}
		return boolInt(IsConstant(n.Args[0], r)), true, nil

	case "SIN":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedTrig(v, math.Sin), true, nil

	case "COS":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedTrig(v, math.Cos), true, nil

	case "TAN":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedTrig(v, math.Tan), true, nil

	case "ASIN":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedInverseTrig(v, math.Asin), true, nil

	case "ACOS":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedInverseTrig(v, math.Acos), true, nil

	case "ATAN":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedInverseTrig(v, math.Atan), true, nil

	case "ATAN2":
		y, ok1, err := arg(0)
		if err != nil || !ok1 {
			return 0, ok1, err
		}
		x, ok2, err := arg(1)
		if err != nil || !ok2 {
			return 0, ok2, err
		}
		return fixedAtan2(y, x), true, nil

	case "POW":
		b, ok1, err := arg(0)
		if err != nil || !ok1 {
			return 0, ok1, err
		}
		e, ok2, err := arg(1)
		if err != nil || !ok2 {
			return 0, ok2, err
		}
		return fixExp(b, e), true, nil

	case "LOG":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		b, ok2, err := arg(1)
		if err != nil || !ok2 {
			return 0, ok2, err
		}
		return fixedLog(v, b), true, nil

	case "ROUND":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedRound(v, math.Round), true, nil

	case "CEIL":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedRound(v, math.Ceil), true, nil

	case "FLOOR":
		v, ok, err := arg(0)
		if err != nil || !ok {
			return 0, ok, err
		}
		return fixedRound(v, math.Floor), true, nil

	default:
		return 0, false, fmt.Errorf("unknown intrinsic %q", n.IntrinsicName)
	}
}

func literalSectionName(n *Node) (string, error) {
	if len(n.Args) != 1 || n.Args[0].Kind != KindSymbol {
		return "", fmt.Errorf("%s: expects a single section name literal", n.IntrinsicName)
	}
	return n.Args[0].Symbol, nil
}

func sectionBankOfSymbol(name string, r Resolver) (int32, bool, error) {
	return r.SectionBank(name)
}
