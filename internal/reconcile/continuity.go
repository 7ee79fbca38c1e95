package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// OrderingError reports statements whose periods overlap or are not
// strictly increasing. It names the offending pair and aborts the whole
// chain validation.
type OrderingError struct {
	FromStatementID string
	ToStatementID   string
	Reason          string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("reconcile: statements %s -> %s: %s", e.FromStatementID, e.ToStatementID, e.Reason)
}

// ContinuityResult is the end-balance/start-balance comparison for one
// adjacent statement pair.
type ContinuityResult struct {
	FromStatementID string          `json:"from_statement_id"`
	ToStatementID   string          `json:"to_statement_id"`
	FromEndBalance  decimal.Decimal `json:"from_end_balance"`
	ToStartBalance  decimal.Decimal `json:"to_start_balance"`
	Delta           decimal.Decimal `json:"delta"` // to start - from end
	Passed          bool            `json:"passed"`
}

// ValidateChain checks that each statement's end balance carries over into
// the next statement's start balance. The input must already be ordered by
// period start; the ordering precondition is verified for the entire
// sequence before any result is produced.
func ValidateChain(facts []*statement.StatementFacts, cfg Config) ([]ContinuityResult, error) {
	for i := 0; i < len(facts)-1; i++ {
		cur, next := facts[i], facts[i+1]
		if !next.PeriodStart.After(cur.PeriodStart) {
			return nil, &OrderingError{
				FromStatementID: cur.StatementID,
				ToStatementID:   next.StatementID,
				Reason:          "period starts are not strictly increasing",
			}
		}
		if next.PeriodStart.Before(cur.PeriodEnd) {
			return nil, &OrderingError{
				FromStatementID: cur.StatementID,
				ToStatementID:   next.StatementID,
				Reason: fmt.Sprintf("periods overlap: %s starts %s before %s ends %s",
					next.StatementID, next.PeriodStart.Format("02.01.2006"),
					cur.StatementID, cur.PeriodEnd.Format("02.01.2006")),
			}
		}
	}

	results := make([]ContinuityResult, 0, max(len(facts)-1, 0))
	for i := 0; i < len(facts)-1; i++ {
		cur, next := facts[i], facts[i+1]
		delta := next.StartBalance.Parsed.Sub(cur.EndBalance.Parsed)
		results = append(results, ContinuityResult{
			FromStatementID: cur.StatementID,
			ToStatementID:   next.StatementID,
			FromEndBalance:  cur.EndBalance.Parsed,
			ToStartBalance:  next.StartBalance.Parsed,
			Delta:           delta,
			Passed:          delta.Abs().LessThanOrEqual(cfg.Epsilon),
		})
	}
	return results, nil
}
