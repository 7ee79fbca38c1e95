package reconcile

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

func TestValidateChainPass(t *testing.T) {
	a := testFacts("4/2022",
		balance("1.000,00", 1000.00, "01.05.2022"),
		balance("965,00", 965.00, "31.05.2022"),
		tx("-35,00", -35.00, "Lastschrift"),
	)
	b := testFacts("5/2022",
		balance("965,00", 965.00, "01.06.2022"),
		balance("970,00", 970.00, "30.06.2022"),
		tx("5,00", 5.00, "Gutschrift"),
	)

	results, err := ValidateChain([]*statement.StatementFacts{a, b}, DefaultConfig())
	if err != nil {
		t.Fatalf("ValidateChain error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !r.Passed {
		t.Errorf("continuity should pass, delta=%s", r.Delta)
	}
	if r.FromStatementID != "4/2022" || r.ToStatementID != "5/2022" {
		t.Errorf("pair = %s -> %s", r.FromStatementID, r.ToStatementID)
	}
}

func TestValidateChainMismatch(t *testing.T) {
	a := testFacts("4/2022",
		balance("1.000,00", 1000.00, "01.05.2022"),
		balance("965,00", 965.00, "31.05.2022"),
	)
	b := testFacts("5/2022",
		balance("964,00", 964.00, "01.06.2022"),
		balance("970,00", 970.00, "30.06.2022"),
	)

	results, err := ValidateChain([]*statement.StatementFacts{a, b}, DefaultConfig())
	if err != nil {
		t.Fatalf("ValidateChain error: %v", err)
	}
	r := results[0]
	if r.Passed {
		t.Error("continuity should fail for 965.00 -> 964.00")
	}
	if !r.Delta.Equal(decimal.RequireFromString("-1.00")) {
		t.Errorf("delta = %s, want -1.00", r.Delta)
	}
}

func TestValidateChainOverlapOrdering(t *testing.T) {
	// Periods [01.01, 28.02] and [15.01, 15.02] overlap.
	a := testFacts("1/2022",
		balance("0,00", 0, "01.01.2022"),
		balance("0,00", 0, "28.02.2022"),
	)
	b := testFacts("2/2022",
		balance("0,00", 0, "15.01.2022"),
		balance("0,00", 0, "15.02.2022"),
	)

	_, err := ValidateChain([]*statement.StatementFacts{a, b}, DefaultConfig())
	var oe *OrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OrderingError", err)
	}
	if oe.FromStatementID != "1/2022" || oe.ToStatementID != "2/2022" {
		t.Errorf("offending pair = %s -> %s", oe.FromStatementID, oe.ToStatementID)
	}
}

func TestValidateChainNonIncreasing(t *testing.T) {
	a := testFacts("2/2022",
		balance("0,00", 0, "01.02.2022"),
		balance("0,00", 0, "28.02.2022"),
	)
	b := testFacts("1/2022",
		balance("0,00", 0, "01.02.2022"),
		balance("0,00", 0, "31.01.2022"),
	)

	_, err := ValidateChain([]*statement.StatementFacts{a, b}, DefaultConfig())
	var oe *OrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OrderingError", err)
	}
}

func TestValidateChainSingleStatement(t *testing.T) {
	a := testFacts("4/2022",
		balance("1.000,00", 1000.00, "01.05.2022"),
		balance("965,00", 965.00, "31.05.2022"),
	)
	results, err := ValidateChain([]*statement.StatementFacts{a}, DefaultConfig())
	if err != nil {
		t.Fatalf("ValidateChain error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for single statement, want 0", len(results))
	}
}
