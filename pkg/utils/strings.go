package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatUintBinary formats value as a fixed-width binary string of the
// given bit width, zero-padded.
func FormatUintBinary(value uint64, bits int) string {
	format := "%0" + fmt.Sprint(bits) + "s"
	return fmt.Sprintf(format, strconv.FormatUint(value, 2))
}

// FormatUintHex formats value as a fixed-width hex string with the given
// number of hex digits, zero-padded, lowercase.
func FormatUintHex(value uint64, digits int) string {
	format := "0x%0" + fmt.Sprint(digits) + "s"
	return fmt.Sprintf(format, strconv.FormatUint(value, 16))
}

// FormatSlice formats every element of input with fmt.Sprint and joins them
// with separator.
func FormatSlice[T any](input []T, separator string) string {
	var b strings.Builder

	for i, value := range input {
		b.WriteString(fmt.Sprint(value))
		if i < len(input)-1 {
			b.WriteString(separator)
		}
	}

	return b.String()
}
