// Package amount converts monetary strings in German/European notation
// (period for thousands, comma for decimals) or plain English notation into
// exact decimal values. Format detection is automatic; the one genuinely
// ambiguous case (a single period followed by exactly three digits) is
// resolved by a configurable policy.
package amount

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatError reports a string that cannot be resolved to a number.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("amount: cannot parse %q: %s", e.Raw, e.Reason)
}

// Policy controls the tie-break for strings with a single separator and
// exactly three trailing digits, e.g. "1.234". The original statements
// write thousands groups this way far more often than three-digit decimal
// fractions, so the default treats them as thousands separators.
type Policy struct {
	// ThreeDigitGroupIsDecimal treats "1.234" as 1.234 instead of 1234.
	ThreeDigitGroupIsDecimal bool
}

// DefaultPolicy treats a lone separator followed by three digits as a
// thousands separator.
var DefaultPolicy = Policy{}

var normalizedRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Parse converts raw into an exact decimal using the default policy.
func Parse(raw string) (decimal.Decimal, error) {
	return DefaultPolicy.Parse(raw)
}

// Parse converts raw into an exact decimal value.
//
// Detection rules:
//   - both separators present: the rightmost one is the decimal separator,
//     the other is a thousands separator and is removed
//   - only "," present: decimal separator when followed by 1-2 trailing
//     digits, thousands separator otherwise
//   - only "." present: same rule, with the three-digit case decided by
//     the policy
//   - no separator: integer
func (p Policy) Parse(raw string) (decimal.Decimal, error) {
	s := stripCurrency(raw)
	if s == "" {
		return decimal.Zero, &FormatError{Raw: raw, Reason: "empty after stripping currency"}
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, &FormatError{Raw: raw, Reason: "no digits"}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// German: "450.105,96"
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// English with thousands commas: "450,105.96"
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = p.resolveSingleSeparator(s, ",")
	case lastDot >= 0:
		s = p.resolveSingleSeparator(s, ".")
	}

	if negative {
		s = "-" + s
	}
	if !normalizedRe.MatchString(s) {
		return decimal.Zero, &FormatError{Raw: raw, Reason: fmt.Sprintf("normalized form %q is not numeric", s)}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &FormatError{Raw: raw, Reason: err.Error()}
	}
	return d, nil
}

// resolveSingleSeparator normalizes a string containing only one kind of
// separator (sep occurs one or more times, the other not at all).
func (p Policy) resolveSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		// "1.234.567" can only be thousands grouping.
		return strings.ReplaceAll(s, sep, "")
	}

	idx := strings.LastIndex(s, sep)
	trailing := len(s) - idx - 1
	switch {
	case trailing >= 1 && trailing <= 2:
		// "1,5" / "1234.56" — decimal separator.
		return s[:idx] + "." + s[idx+1:]
	case trailing == 3 && p.ThreeDigitGroupIsDecimal:
		return s[:idx] + "." + s[idx+1:]
	default:
		// "1.234", "12.3456" — thousands grouping (possibly sloppy).
		return strings.ReplaceAll(s, sep, "")
	}
}

// stripCurrency removes whitespace, currency markers and an explicit plus
// sign, keeping a leading minus.
func stripCurrency(raw string) string {
	s := strings.TrimSpace(raw)
	for _, marker := range []string{"EUR", "€", "+"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	return strings.ReplaceAll(s, " ", "")
}

// FormatGerman renders d in German notation with two decimal places and
// thousands periods, e.g. -12500 → "-12.500,00".
func FormatGerman(d decimal.Decimal) string {
	s := d.StringFixed(2)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}
