package contribution

import (
	"strconv"
	"strings"
)

// digitZeros lists the zero code point of every decimal digit run accepted in
// contributions: ASCII, Arabic-Indic and Extended Arabic-Indic (Persian).
var digitZeros = []rune{'0', '٠', '۰'}

// Extract parses text as a contribution.
// After trimming surrounding whitespace the text must be an optional '+' or '-'
// followed by one or more decimal digits and nothing else. Values outside the
// int64 range are not contributions.
func Extract(text string) (int64, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, false
	}

	var b strings.Builder
	b.Grow(len(t))
	for i, r := range t {
		if i == 0 && (r == '+' || r == '-') {
			b.WriteRune(r)
			continue
		}
		d, ok := digitValue(r)
		if !ok {
			return 0, false
		}
		b.WriteByte('0' + d)
	}

	// ParseInt rejects a bare sign and out-of-range values.
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// digitValue maps r to its decimal value if it belongs to an accepted digit run.
func digitValue(r rune) (byte, bool) {
	for _, zero := range digitZeros {
		if r >= zero && r <= zero+9 {
			return byte(r - zero), true
		}
	}
	return 0, false
}
