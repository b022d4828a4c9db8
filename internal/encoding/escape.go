package encoding

// Payload bytes are rewritten with an order-preserving prefix code so that the
// separator (0x00) never occurs inside a value and 0xFF never starts a codeword:
//
//	0x00 -> 0x01 0x01
//	0x01 -> 0x01 0x02
//	0xFE -> 0xFE 0xFE
//	0xFF -> 0xFE 0xFF
//
// Every other byte maps to itself.
const (
	Separator byte = 0x00
	Boundary  byte = 0xFF

	escapeLow  byte = 0x01
	escapeHigh byte = 0xFE
)

func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0x00:
			dst = append(dst, escapeLow, 0x01)
		case 0x01:
			dst = append(dst, escapeLow, 0x02)
		case 0xFE:
			dst = append(dst, escapeHigh, 0xFE)
		case 0xFF:
			dst = append(dst, escapeHigh, 0xFF)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

func escapedLen(s string) int {
	n := len(s)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x00, 0x01, 0xFE, 0xFF:
			n++
		}
	}
	return n
}

// unescape reverses appendEscaped; offset is only used for error reporting.
func unescape(b []byte, offset int) (string, error) {
	clean := true
	for _, c := range b {
		if c == escapeLow || c == escapeHigh || c == Separator || c == Boundary {
			clean = false
			break
		}
	}
	if clean {
		return string(b), nil
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case escapeLow, escapeHigh:
			if i+1 >= len(b) {
				return "", decodingErrorf(offset+i, "truncated escape sequence")
			}
			next := b[i+1]
			i++
			switch {
			case c == escapeLow && next == 0x01:
				out = append(out, 0x00)
			case c == escapeLow && next == 0x02:
				out = append(out, 0x01)
			case c == escapeHigh && next == 0xFE:
				out = append(out, 0xFE)
			case c == escapeHigh && next == 0xFF:
				out = append(out, 0xFF)
			default:
				return "", decodingErrorf(offset+i-1, "invalid escape sequence %#x %#x", c, next)
			}
		case Separator, Boundary:
			return "", decodingErrorf(offset+i, "unescaped byte %#x in value", c)
		default:
			out = append(out, c)
		}
	}
	return string(out), nil
}
