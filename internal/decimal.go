package internal

import (
	"strings"

	"github.com/golem-base/golemsql"
)

// DECIMAL(p, s) values are carried as canonical strings and indexed
// via a fixed-width lexicographic encoding whose byte order matches
// numeric order:
//
//	positive:  '.' <int digits, zero-padded to p-s> [ '.' <s frac digits> ]
//	negative:  same shape with every digit nine's-complemented and both
//	           separators replaced by '-'
//
// '-' (0x2D) sorts below '.' (0x2E), so every negative sorts below
// every non-negative on the first byte. Within one sign all encodings
// at a given (p, s) share length and separator positions, leaving the
// comparison to the digits — ascending for positives, descending via
// the complement for negatives.

// NormalizeDecimal validates a decimal literal against (precision,
// scale) and returns its canonical form: optional '-', integer digits
// without leading zeros, and exactly scale fractional digits.
func NormalizeDecimal(s string, precision, scale int) (string, error) {
	neg, intDigits, fracDigits, err := splitDecimal(s)
	if err != nil {
		return "", err
	}
	intPart := precision - scale

	intDigits = strings.TrimLeft(intDigits, "0")
	if len(intDigits) > intPart {
		return "", decimalRangeError(s, precision, scale)
	}

	// Nonzero fractional digits beyond the declared scale are rejected
	// rather than rounded; trailing zeros past the scale are dropped.
	if len(fracDigits) > scale {
		if strings.TrimRight(fracDigits[scale:], "0") != "" {
			return "", decimalRangeError(s, precision, scale)
		}
		fracDigits = fracDigits[:scale]
	}
	for len(fracDigits) < scale {
		fracDigits += "0"
	}

	if intDigits == "" {
		intDigits = "0"
	}
	if intDigits == "0" && strings.Trim(fracDigits, "0") == "" {
		neg = false // normalize -0
	}

	out := intDigits
	if scale > 0 {
		out += "." + fracDigits
	}
	if neg {
		out = "-" + out
	}
	return out, nil
}

// EncodeDecimal maps a decimal literal to its order-preserving string
// annotation at (precision, scale).
func EncodeDecimal(s string, precision, scale int) (string, error) {
	norm, err := NormalizeDecimal(s, precision, scale)
	if err != nil {
		return "", err
	}
	neg, intDigits, fracDigits, err := splitDecimal(norm)
	if err != nil {
		return "", err
	}
	intPart := precision - scale

	var b strings.Builder
	b.WriteByte('.')
	for i := len(intDigits); i < intPart; i++ {
		b.WriteByte('0')
	}
	b.WriteString(intDigits[max(0, len(intDigits)-intPart):])
	if intPart == 0 {
		// all-fractional types carry no integer digits
		b.Reset()
		b.WriteByte('.')
	}
	if scale > 0 {
		b.WriteByte('.')
		b.WriteString(fracDigits)
	}

	enc := b.String()
	if !neg {
		return enc, nil
	}

	inverted := []byte(enc)
	for i, c := range inverted {
		switch {
		case c == '.':
			inverted[i] = '-'
		case c >= '0' && c <= '9':
			inverted[i] = '0' + ('9' - c)
		}
	}
	return string(inverted), nil
}

// DecodeDecimal restores the canonical decimal string from its
// encoded annotation form.
func DecodeDecimal(enc string, precision, scale int) (string, error) {
	if enc == "" {
		return "", golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "empty decimal encoding")
	}
	neg := enc[0] == '-'
	body := []byte(enc)
	if neg {
		for i, c := range body {
			switch {
			case c == '-':
				body[i] = '.'
			case c >= '0' && c <= '9':
				body[i] = '0' + ('9' - c)
			}
		}
	}
	s := string(body)
	if s[0] != '.' {
		return "", golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "malformed decimal encoding %q", enc)
	}
	s = s[1:]

	intDigits := s
	fracDigits := ""
	if scale > 0 {
		dot := strings.LastIndexByte(s, '.')
		if dot < 0 {
			return "", golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "malformed decimal encoding %q", enc)
		}
		intDigits, fracDigits = s[:dot], s[dot+1:]
	}

	intDigits = strings.TrimLeft(intDigits, "0")
	if intDigits == "" {
		intDigits = "0"
	}
	out := intDigits
	if scale > 0 {
		out += "." + fracDigits
	}
	if neg && !(intDigits == "0" && strings.Trim(fracDigits, "0") == "") {
		out = "-" + out
	}
	return out, nil
}

func splitDecimal(s string) (neg bool, intDigits, fracDigits string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, "", "", golemsql.NewDataError(golemsql.ErrCodeBadValue, "empty decimal literal")
	}
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return false, "", "", golemsql.NewDataError(golemsql.ErrCodeBadValue, "malformed decimal literal")
	}

	intDigits = s
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intDigits, fracDigits = s[:dot], s[dot+1:]
		if strings.IndexByte(fracDigits, '.') >= 0 {
			return false, "", "", golemsql.NewDataError(golemsql.ErrCodeBadValue, "malformed decimal literal %q", s)
		}
	}
	for _, part := range []string{intDigits, fracDigits} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return false, "", "", golemsql.NewDataError(golemsql.ErrCodeBadValue, "malformed decimal literal %q", s)
			}
		}
	}
	return neg, intDigits, fracDigits, nil
}

func decimalRangeError(s string, precision, scale int) error {
	return golemsql.NewDataError(golemsql.ErrCodeValueOutOfRange,
		"numeric %s out of range for DECIMAL(%d,%d)", s, precision, scale)
}
