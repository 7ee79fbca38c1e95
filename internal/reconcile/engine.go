// Package reconcile validates extracted statement facts: per-statement
// balance arithmetic, cross-checking of the model's numeric conversions,
// balance continuity across consecutive statements, and the aggregate
// report. Everything here is a pure function of its inputs.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// conversionEpsilon absorbs float rounding when comparing the model's
// claimed number against the deterministic re-parse. Half a cent.
var conversionEpsilon = decimal.New(5, -3)

// Config is the caller-supplied validation configuration.
type Config struct {
	// Epsilon is the tolerance for balance and continuity checks.
	Epsilon decimal.Decimal

	// DiscrepancyRateThreshold fails the overall report when the share of
	// mismatched conversions exceeds it. Zero or negative disables the
	// threshold.
	DiscrepancyRateThreshold float64

	// SignConvention maps transaction categories to debit/credit.
	SignConvention statement.SignConvention
}

// DefaultConfig uses a one-cent tolerance and the Sparkasse sign
// convention, with no discrepancy-rate threshold.
func DefaultConfig() Config {
	return Config{
		Epsilon:        decimal.New(1, -2),
		SignConvention: statement.DefaultSignConvention(),
	}
}

// ConversionDiscrepancy records a disagreement between the model's claimed
// numeric value and the deterministic re-parse of the original string. It
// is a finding, not an error; downstream math always uses Reparsed.
type ConversionDiscrepancy struct {
	Field    string          `json:"field"` // "anfangssaldo", "endsaldo", "transaktion_3"
	Original string          `json:"original_string"`
	Claimed  float64         `json:"llm_converted"`
	Reparsed decimal.Decimal `json:"reparsed"`
}

// BalanceCheck is the start + sum(transactions) == end verification for one
// statement.
type BalanceCheck struct {
	Expected decimal.Decimal `json:"expected"` // start balance + signed transaction sum
	Actual   decimal.Decimal `json:"actual"`   // end balance as printed
	Delta    decimal.Decimal `json:"delta"`    // actual - expected
	Passed   bool            `json:"passed"`
}

// ValidationResult is the reconciliation outcome for one statement. It
// references the statement by ID only and is never mutated after creation.
type ValidationResult struct {
	StatementID             string                  `json:"statement_id"`
	Balance                 BalanceCheck            `json:"balance_check"`
	ConversionDiscrepancies []ConversionDiscrepancy `json:"conversion_discrepancies,omitempty"`
	TransactionCount        int                     `json:"transaction_count"`
	FieldsExamined          int                     `json:"fields_examined"` // fields carrying a model conversion

	// ZeroTransactions flags a statement the extractor returned no
	// transactions for. Even when start and end balance coincide this is
	// treated as a warning, not a clean pass.
	ZeroTransactions bool `json:"zero_transactions,omitempty"`
}

// Reconcile validates one statement's transactions against its printed
// start and end balances and records every conversion disagreement.
func Reconcile(facts *statement.StatementFacts, cfg Config) ValidationResult {
	result := ValidationResult{
		StatementID:      facts.StatementID,
		TransactionCount: len(facts.Transactions),
		ZeroTransactions: len(facts.Transactions) == 0,
	}

	checkConversion(&result, "anfangssaldo", facts.StartBalance.Original, facts.StartBalance.ClaimedNumber, facts.StartBalance.Parsed)
	checkConversion(&result, "endsaldo", facts.EndBalance.Original, facts.EndBalance.ClaimedNumber, facts.EndBalance.Parsed)

	sum := decimal.Zero
	for i, tx := range facts.Transactions {
		field := transactionField(i)
		checkConversion(&result, field, tx.Original, tx.ClaimedNumber, tx.Parsed)
		sum = sum.Add(tx.SignedAmount(cfg.SignConvention))
	}

	expected := facts.StartBalance.Parsed.Add(sum)
	actual := facts.EndBalance.Parsed
	delta := actual.Sub(expected)

	result.Balance = BalanceCheck{
		Expected: expected,
		Actual:   actual,
		Delta:    delta,
		Passed:   delta.Abs().LessThanOrEqual(cfg.Epsilon),
	}

	return result
}

// checkConversion compares the model's claimed number against the re-parsed
// value and records a discrepancy when they differ by more than half a
// cent. The re-parsed value stays authoritative either way. A nil claim
// means the model never converted the field; there is nothing to
// cross-check and no discrepancy to record.
func checkConversion(result *ValidationResult, field, original string, claimed *float64, reparsed decimal.Decimal) {
	if claimed == nil {
		return
	}
	result.FieldsExamined++
	diff := reparsed.Sub(decimal.NewFromFloat(*claimed)).Abs()
	if diff.GreaterThan(conversionEpsilon) {
		result.ConversionDiscrepancies = append(result.ConversionDiscrepancies, ConversionDiscrepancy{
			Field:    field,
			Original: original,
			Claimed:  *claimed,
			Reparsed: reparsed,
		})
	}
}

func transactionField(i int) string {
	return fmt.Sprintf("transaktion_%d", i+1)
}
