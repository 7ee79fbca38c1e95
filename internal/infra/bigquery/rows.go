// Package bigquery persists analysis runs and their validation artifacts
// to BigQuery so that statement audits remain queryable after the fact.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// AnalysisRunRow tracks one batch analysis over a set of statement
// artifacts in the audit.analysis_runs table.
type AnalysisRunRow struct {
	AnalysisRunID string `bigquery:"analysis_run_id"` // REQUIRED

	StartedAt  time.Time              `bigquery:"started_ts"`
	FinishedAt bigquery.NullTimestamp `bigquery:"finished_ts"`

	OracleType string `bigquery:"oracle_type"` // e.g. OLLAMA_CHAT, GEMINI
	ModelID    string `bigquery:"model_id"`

	Status       string `bigquery:"status"` // RUNNING, SUCCESS, FAILED
	ErrorMessage string `bigquery:"error_message"`

	StatementCount bigquery.NullInt64 `bigquery:"statement_count"`
	Metadata       bigquery.NullJSON  `bigquery:"metadata"`
}

// StatementResultRow is the per-statement validation artifact in the
// audit.statement_results table. Balances are NUMERIC to keep cent
// precision.
type StatementResultRow struct {
	ResultID      string `bigquery:"result_id"` // REQUIRED
	AnalysisRunID string `bigquery:"analysis_run_id"`

	StatementID string `bigquery:"statement_id"` // e.g. "4/2022"
	SourceFile  string `bigquery:"source_file"`

	PeriodStart bigquery.NullDate `bigquery:"period_start"`
	PeriodEnd   bigquery.NullDate `bigquery:"period_end"`

	StartBalance *big.Rat `bigquery:"start_balance"` // NUMERIC
	EndBalance   *big.Rat `bigquery:"end_balance"`   // NUMERIC

	ExpectedEndBalance *big.Rat `bigquery:"expected_end_balance"` // NUMERIC
	BalanceDelta       *big.Rat `bigquery:"balance_delta"`        // NUMERIC
	BalancePassed      bool     `bigquery:"balance_passed"`

	TransactionCount        int64 `bigquery:"transaction_count"`
	ConversionDiscrepancies int64 `bigquery:"conversion_discrepancies"`
	FieldsExamined          int64 `bigquery:"fields_examined"`
	ZeroTransactions        bool  `bigquery:"zero_transactions"`

	// Full ValidationResult as JSON for auditing individual findings.
	ValidationDetail bigquery.NullJSON `bigquery:"validation_detail"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// ContinuityRow is one adjacent-pair continuity check in the
// audit.continuity_checks table.
type ContinuityRow struct {
	CheckID       string `bigquery:"check_id"` // REQUIRED
	AnalysisRunID string `bigquery:"analysis_run_id"`

	FromStatementID string `bigquery:"from_statement_id"`
	ToStatementID   string `bigquery:"to_statement_id"`

	FromEndBalance *big.Rat `bigquery:"from_end_balance"` // NUMERIC
	ToStartBalance *big.Rat `bigquery:"to_start_balance"` // NUMERIC
	Delta          *big.Rat `bigquery:"delta"`            // NUMERIC
	Passed         bool     `bigquery:"passed"`

	CreatedTS time.Time `bigquery:"created_ts"`
}
