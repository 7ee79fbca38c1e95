// Package statement holds the domain types for a single Kontoauszug: the
// dual-representation balances and transactions extracted by the model,
// plus deterministic helpers for enriching them.
package statement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the signed role of a transaction in the balance equation.
type Direction string

const (
	DirectionDebit   Direction = "DEBIT"
	DirectionCredit  Direction = "CREDIT"
	DirectionUnknown Direction = "UNKNOWN"
)

// Balance pairs an amount exactly as printed in the document with the
// model's own numeric conversion and the deterministic re-parse. Parsed is
// the authoritative value; ClaimedNumber is kept only for cross-checking
// and is nil when the model omitted the conversion.
type Balance struct {
	Original      string          // "betrag_original", e.g. "450.105,96"
	ClaimedNumber *float64        // "betrag_nummer" as returned by the model
	Parsed        decimal.Decimal // re-parsed from Original
	Date          time.Time       // statement date of the balance line
	Description   string          // e.g. "Kontostand am 31.05.2022 um 20:03 Uhr"
}

// TransactionRecord is one booked transaction with both representations of
// its amount. Parsed always equals the deterministic re-parse of Original;
// disagreement with ClaimedNumber is recorded by the reconciliation engine,
// never patched here.
type TransactionRecord struct {
	Original      string          // amount exactly as printed
	ClaimedNumber *float64        // model-converted number, nil when omitted
	Parsed        decimal.Decimal // re-parsed from Original

	Date        time.Time  // booking date
	ValutaDate  *time.Time // value date, when present
	Description string
	Category    string // transaction type, e.g. "Lastschrift"

	WKN  string // securities ID when the booking references a Wertpapier
	ISIN string
}

// SignedAmount returns the transaction amount with the sign dictated by the
// convention for its category. Amounts already carrying a sign in the
// document keep it; the convention only flips unsigned amounts whose
// category maps to a debit.
func (t TransactionRecord) SignedAmount(conv SignConvention) decimal.Decimal {
	if t.Parsed.IsNegative() {
		return t.Parsed
	}
	if conv.DirectionFor(t.Category) == DirectionDebit {
		return t.Parsed.Neg()
	}
	return t.Parsed
}

// StatementFacts is everything extracted from one statement. It is built
// once from a model response and treated as immutable from then on.
type StatementFacts struct {
	StatementID  string // e.g. "4/2022" from "Kontoauszug 4/2022"
	SourceFile   string
	StartBalance Balance
	EndBalance   Balance
	Transactions []TransactionRecord
	PeriodStart  time.Time
	PeriodEnd    time.Time
}

// SignConvention maps transaction categories to debit or credit. It is
// caller configuration; the engine never infers direction from magnitude.
type SignConvention struct {
	directions map[string]Direction
}

// NewSignConvention builds a convention from an explicit category map.
func NewSignConvention(directions map[string]Direction) SignConvention {
	m := make(map[string]Direction, len(directions))
	for k, v := range directions {
		m[k] = v
	}
	return SignConvention{directions: m}
}

// DefaultSignConvention covers the booking types found on Sparkasse
// statements.
func DefaultSignConvention() SignConvention {
	return NewSignConvention(map[string]Direction{
		"Wertpapierkauf":         DirectionDebit,
		"Wertpapierverkauf":      DirectionCredit,
		"Überweisung ausgehend":  DirectionDebit,
		"Überweisung eingehend":  DirectionCredit,
		"Gutschrift":             DirectionCredit,
		"Lastschrift":            DirectionDebit,
		"Gebühren":               DirectionDebit,
		"Verwahrentgelt":         DirectionDebit,
		"Abrechnung":             DirectionDebit,
		"Zinsen":                 DirectionCredit,
		"Eingang":                DirectionCredit,
		"Ausgang":                DirectionDebit,
	})
}

// DirectionFor returns the direction for a category, or DirectionUnknown
// when the convention has no entry for it.
func (c SignConvention) DirectionFor(category string) Direction {
	if d, ok := c.directions[category]; ok {
		return d
	}
	return DirectionUnknown
}
