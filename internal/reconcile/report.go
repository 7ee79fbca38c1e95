package reconcile

// AnalysisReport aggregates every per-statement and cross-statement check
// into one pass/fail summary.
type AnalysisReport struct {
	OverallPassed bool `json:"overall_passed"`

	StatementsAnalyzed     int `json:"statements_analyzed"`
	BalanceChecksPassed    int `json:"balance_checks_passed"`
	ContinuityChecksPassed int `json:"continuity_checks_passed"`
	ContinuityChecksTotal  int `json:"continuity_checks_total"`

	DiscrepancyCount int     `json:"conversion_discrepancies"`
	FieldsExamined   int     `json:"fields_examined"`
	DiscrepancyRate  float64 `json:"discrepancy_rate"`

	// FailedStatements lists the artifact references that never produced a
	// validation result (extraction or decoding failed).
	FailedStatements []string `json:"failed_statements,omitempty"`

	// ZeroTransactionStatements lists statement IDs with no extracted
	// transactions, a likely extraction failure.
	ZeroTransactionStatements []string `json:"zero_transaction_statements,omitempty"`
}

// BuildReport summarizes validation and continuity results. failed names
// the statements that produced no result at all; they count against the
// report just like a failed check. The report only passes when at least one
// statement was analyzed, none failed, every balance check passed, every
// continuity check passed, no statement came back without transactions,
// and the discrepancy rate is within the configured threshold (when one is
// set).
func BuildReport(results []ValidationResult, continuity []ContinuityResult, failed []string, cfg Config) AnalysisReport {
	report := AnalysisReport{
		StatementsAnalyzed:    len(results),
		ContinuityChecksTotal: len(continuity),
		FailedStatements:      failed,
	}

	for _, r := range results {
		if r.Balance.Passed {
			report.BalanceChecksPassed++
		}
		if r.ZeroTransactions {
			report.ZeroTransactionStatements = append(report.ZeroTransactionStatements, r.StatementID)
		}
		report.DiscrepancyCount += len(r.ConversionDiscrepancies)
		report.FieldsExamined += r.FieldsExamined
	}
	for _, c := range continuity {
		if c.Passed {
			report.ContinuityChecksPassed++
		}
	}

	if report.FieldsExamined > 0 {
		report.DiscrepancyRate = float64(report.DiscrepancyCount) / float64(report.FieldsExamined)
	}

	report.OverallPassed = len(results) > 0 &&
		len(failed) == 0 &&
		report.BalanceChecksPassed == len(results) &&
		report.ContinuityChecksPassed == len(continuity) &&
		len(report.ZeroTransactionStatements) == 0
	if cfg.DiscrepancyRateThreshold > 0 && report.DiscrepancyRate > cfg.DiscrepancyRateThreshold {
		report.OverallPassed = false
	}

	return report
}
