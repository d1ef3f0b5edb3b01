package obj

// RPN opcode bytes. A patch or assertion expression is a postfix byte
// stream built from these; constants and symbol references carry their
// operand inline, little-endian, immediately after the opcode byte.
const (
	RPNAdd Op = 0x00
	RPNSub Op = 0x01
	RPNMul Op = 0x02
	RPNDiv Op = 0x03
	RPNMod Op = 0x04
	RPNNeg Op = 0x05
	RPNExp Op = 0x06

	RPNOr  Op = 0x10
	RPNAnd Op = 0x11
	RPNXor Op = 0x12
	RPNNot Op = 0x13

	RPNLogAnd Op = 0x21
	RPNLogOr  Op = 0x22
	RPNLogNot Op = 0x23

	RPNLogEq Op = 0x30
	RPNLogNe Op = 0x31
	RPNLogGt Op = 0x32
	RPNLogLt Op = 0x33
	RPNLogGe Op = 0x34
	RPNLogLe Op = 0x35

	RPNShl  Op = 0x40
	RPNShr  Op = 0x41
	RPNUShr Op = 0x42

	RPNBankSym  Op = 0x50 // + u32 symbol index
	RPNBankSect Op = 0x51 // + NUL-terminated section name
	RPNBankSelf Op = 0x52
	RPNSizeofSect  Op = 0x53 // + NUL-terminated section name
	RPNStartofSect Op = 0x54 // + NUL-terminated section name

	RPNHRAMCheck Op = 0x60 // range-checks top of stack fits an HRAM short operand
	RPNRSTCheck  Op = 0x61 // range-checks top of stack is a valid RST vector

	RPNConst Op = 0x80 // + s32 literal value
	RPNSym   Op = 0x81 // + u32 symbol index
)

// Op is one RPN opcode byte.
type Op = byte
