package statement

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var valutaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Wert:\s*(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`Valuta:\s*(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`Wert\s+(\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`/\s*Wert:\s*(\d{2}\.\d{2}\.\d{4})`),
}

// ExtractValutaDate pulls a value date out of a booking description,
// matching the "Wert:"/"Valuta:" annotations Sparkasse prints inline.
// Returns nil when no annotation is present.
func ExtractValutaDate(description string) *time.Time {
	for _, re := range valutaPatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			if d, err := time.Parse("02.01.2006", m[1]); err == nil {
				return &d
			}
		}
	}
	return nil
}

// ClassifyTransaction derives a booking type from the description text.
// Falls back to Eingang/Ausgang based on the sign of the amount when no
// keyword matches.
func ClassifyTransaction(description string, amount decimal.Decimal) string {
	desc := strings.ToLower(description)

	switch {
	case strings.Contains(desc, "wertpapier") || strings.Contains(desc, "depot") || strings.Contains(desc, "wertp."):
		if amount.IsNegative() {
			return "Wertpapierkauf"
		}
		return "Wertpapierverkauf"
	case strings.Contains(desc, "überweisung") || strings.Contains(desc, "übertrag"):
		if amount.IsNegative() {
			return "Überweisung ausgehend"
		}
		return "Überweisung eingehend"
	case strings.Contains(desc, "gutschrift"):
		return "Gutschrift"
	case strings.Contains(desc, "lastschr"):
		return "Lastschrift"
	case strings.Contains(desc, "entgelt") && strings.Contains(desc, "verwahr"):
		return "Verwahrentgelt"
	case strings.Contains(desc, "entgelt") || strings.Contains(desc, "gebühr") || strings.Contains(desc, "kosten"):
		return "Gebühren"
	case strings.Contains(desc, "zins"):
		return "Zinsen"
	case strings.Contains(desc, "abrechnung"):
		return "Abrechnung"
	case amount.IsPositive():
		return "Eingang"
	default:
		return "Ausgang"
	}
}

var (
	wknRe  = regexp.MustCompile(`WKN\s+([A-Z0-9]{6})`)
	isinRe = regexp.MustCompile(`([A-Z]{2}[A-Z0-9]{10})`)
)

// ExtractWKNISIN pulls securities identifiers out of a booking description.
// Either value may be empty.
func ExtractWKNISIN(description string) (wkn, isin string) {
	if m := wknRe.FindStringSubmatch(description); m != nil {
		wkn = m[1]
	}
	if m := isinRe.FindStringSubmatch(description); m != nil {
		isin = m[1]
	}
	return wkn, isin
}
