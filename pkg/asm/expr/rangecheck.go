package expr

import "fmt"

// CheckNBit reports whether v fits in an n-bit signed-or-unsigned operand,
// accepting both the unsigned range [0, 2^n) and the signed range
// [-2^(n-1), 2^(n-1)), i.e. [-2^(n-1), 2^n) overall, the way an `ld a, $FF` 8-bit immediate is legal both as
// 255 and as -1 (spec.md §4.4).
func CheckNBit(v int32, n int) error {
	maxUnsigned := int32(1) << n
	minSigned := -(int32(1) << (n - 1))
	if v >= minSigned && v < maxUnsigned {
		return nil
	}
	return fmt.Errorf("value %d out of range for %d-bit operand (expected %d..%d)", v, n, minSigned, maxUnsigned-1)
}

// CheckHRAM reports whether v addresses the high RAM short-operand window
// $FF00-$FFFF (spec.md §3/§4.4's HRAM-load intrinsic range check).
func CheckHRAM(v int32) error {
	if v >= 0xFF00 && v <= 0xFFFF {
		return nil
	}
	return fmt.Errorf("address $%04X is not in the HRAM short-operand range $FF00-$FFFF", v)
}

// CheckRST reports whether v is one of the eight legal RST vectors.
func CheckRST(v int32) error {
	switch v {
	case 0x00, 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38:
		return nil
	default:
		return fmt.Errorf("$%02X is not a valid RST vector", v)
	}
}

// CheckPCRelative computes and range-checks the signed 8-bit displacement
// for a JR-class instruction: target minus the address of the byte
// immediately after the 2-byte JR instruction.
func CheckPCRelative(target, instructionAddr int32) (int8, error) {
	disp := target - (instructionAddr + 2)
	if disp < -128 || disp > 127 {
		return 0, fmt.Errorf("relative jump target $%04X is out of range of JR at $%04X (displacement %d)", target, instructionAddr, disp)
	}
	return int8(disp), nil
}
