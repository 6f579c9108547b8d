package conv

const hexd = "0123456789abcdef"

// AppendHex8 appends v as "0x" followed by two lowercase hex digits.
// No allocations beyond dst growth; no fmt/strconv dependency.
func AppendHex8(dst []byte, v uint8) []byte {
	return append(dst, '0', 'x', hexd[v>>4], hexd[v&0xF])
}

// Hex8 formats a register or 7-bit bus address, e.g. 0x75.
func Hex8(v uint8) string {
	var buf [4]byte
	return string(AppendHex8(buf[:0], v))
}
