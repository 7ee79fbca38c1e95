package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// ResultRepository is the persistence surface the analysis pipeline needs.
// The pipeline depends on this interface so tests can substitute a mock.
type ResultRepository interface {
	StartAnalysisRun(ctx context.Context, oracleType, modelID string) (string, error)
	MarkAnalysisRunFailed(ctx context.Context, analysisRunID string, runErr error) error
	MarkAnalysisRunSucceeded(ctx context.Context, analysisRunID string, statementCount int) error
	InsertStatementResult(ctx context.Context, row *StatementResultRow) error
	InsertContinuityChecks(ctx context.Context, rows []*ContinuityRow) error
	Close() error
}

// BigQueryResultRepository is the concrete ResultRepository holding a
// shared BigQuery client.
type BigQueryResultRepository struct {
	client *bigquery.Client
}

// NewBigQueryResultRepository creates a repository for the given project.
// credentialsFile may be empty, in which case application default
// credentials are used.
func NewBigQueryResultRepository(ctx context.Context, projectID, credentialsFile string) (*BigQueryResultRepository, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryResultRepository: creating client: %w", err)
	}
	return &BigQueryResultRepository{client: client}, nil
}

// Close releases the underlying client.
func (r *BigQueryResultRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryResultRepository) StartAnalysisRun(ctx context.Context, oracleType, modelID string) (string, error) {
	return StartAnalysisRunWithClient(ctx, r.client, oracleType, modelID)
}

func (r *BigQueryResultRepository) MarkAnalysisRunFailed(ctx context.Context, analysisRunID string, runErr error) error {
	return MarkAnalysisRunFailedWithClient(ctx, r.client, analysisRunID, runErr)
}

func (r *BigQueryResultRepository) MarkAnalysisRunSucceeded(ctx context.Context, analysisRunID string, statementCount int) error {
	return MarkAnalysisRunSucceededWithClient(ctx, r.client, analysisRunID, statementCount)
}

func (r *BigQueryResultRepository) InsertStatementResult(ctx context.Context, row *StatementResultRow) error {
	return InsertStatementResultWithClient(ctx, r.client, row)
}

func (r *BigQueryResultRepository) InsertContinuityChecks(ctx context.Context, rows []*ContinuityRow) error {
	return InsertContinuityChecksWithClient(ctx, r.client, rows)
}
