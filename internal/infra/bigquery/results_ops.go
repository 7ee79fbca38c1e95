package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const (
	datasetID            = "audit"
	analysisRunsTable    = "analysis_runs"
	statementResultsT    = "statement_results"
	continuityChecksT    = "continuity_checks"
	maxErrorMessageChars = 2000
)

// StartAnalysisRunWithClient inserts an audit.analysis_runs row with
// status=RUNNING and returns the generated analysis_run_id.
func StartAnalysisRunWithClient(ctx context.Context, client *bigquery.Client, oracleType, modelID string) (string, error) {
	analysisRunID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			analysis_run_id,
			started_ts,
			oracle_type,
			model_id,
			status
		)
		VALUES (
			@analysis_run_id,
			@started_ts,
			@oracle_type,
			@model_id,
			@status
		)
	`, datasetID, analysisRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_run_id", Value: analysisRunID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "oracle_type", Value: oracleType},
		{Name: "model_id", Value: modelID},
		{Name: "status", Value: "RUNNING"},
	}

	if err := runQuery(ctx, q); err != nil {
		return "", fmt.Errorf("StartAnalysisRun: %w", err)
	}
	return analysisRunID, nil
}

// MarkAnalysisRunFailedWithClient sets an analysis run to FAILED with the
// truncated error message. Failures here are logged by the caller, not
// propagated: the analysis outcome itself matters more than the audit row.
func MarkAnalysisRunFailedWithClient(ctx context.Context, client *bigquery.Client, analysisRunID string, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageChars {
			errMsg = errMsg[:maxErrorMessageChars]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE analysis_run_id = @analysis_run_id
	`, datasetID, analysisRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "FAILED"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "analysis_run_id", Value: analysisRunID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkAnalysisRunFailed: %w", err)
	}
	return nil
}

// MarkAnalysisRunSucceededWithClient sets an analysis run to SUCCESS and
// records the number of statements analyzed.
func MarkAnalysisRunSucceededWithClient(ctx context.Context, client *bigquery.Client, analysisRunID string, statementCount int) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    statement_count = @statement_count,
		    error_message = ""
		WHERE analysis_run_id = @analysis_run_id
	`, datasetID, analysisRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "SUCCESS"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "statement_count", Value: int64(statementCount)},
		{Name: "analysis_run_id", Value: analysisRunID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkAnalysisRunSucceeded: %w", err)
	}
	return nil
}

// InsertStatementResultWithClient streams one statement_results row.
func InsertStatementResultWithClient(ctx context.Context, client *bigquery.Client, row *StatementResultRow) error {
	inserter := client.Dataset(datasetID).Table(statementResultsT).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertStatementResult: inserting row: %w", err)
	}
	return nil
}

// InsertContinuityChecksWithClient streams the continuity_checks rows for
// one analysis run.
func InsertContinuityChecksWithClient(ctx context.Context, client *bigquery.Client, rows []*ContinuityRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.Dataset(datasetID).Table(continuityChecksT).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertContinuityChecks: inserting rows: %w", err)
	}
	return nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
