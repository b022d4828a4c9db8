package encoding

import "fmt"

// EncodingError reports a term that cannot be represented in a key.
type EncodingError struct {
	Term   string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Term == "" {
		return "encoding error: " + e.Reason
	}
	return fmt.Sprintf("encoding error: %s: %s", e.Term, e.Reason)
}

// DecodingError reports a key that cannot be parsed back into terms.
type DecodingError struct {
	Offset int
	Reason string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding error at offset %d: %s", e.Offset, e.Reason)
}

func decodingErrorf(offset int, format string, args ...any) error {
	return &DecodingError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
