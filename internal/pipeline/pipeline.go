// Package pipeline orchestrates the analysis of statement extraction
// artifacts: load artifact, query the model, decode the response,
// reconcile, persist. Steps share a state struct and run in sequence; the
// batch layer fans the per-statement pipeline out over many artifacts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bigquerylib "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/nweidner/kontoauszug-analyzer/internal/extractor"
	infra "github.com/nweidner/kontoauszug-analyzer/internal/infra/bigquery"
	"github.com/nweidner/kontoauszug-analyzer/internal/logger"
	"github.com/nweidner/kontoauszug-analyzer/internal/oracle"
	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
	"github.com/nweidner/kontoauszug-analyzer/internal/reconcile"
	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// PipelineStep is a single stage in the per-statement analysis.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState is the shared state across all steps for one statement.
type PipelineState struct {
	Ref           string // artifact reference (path or gs:// URI)
	AnalysisRunID string

	Document    *extractor.ExtractedDocument
	Request     protocol.Request
	RawResponse string
	Facts       *statement.StatementFacts
	Result      *reconcile.ValidationResult
}

// LoadArtifactStep loads the extraction artifact for the statement.
type LoadArtifactStep struct {
	Source extractor.Source
}

func (s *LoadArtifactStep) Execute(ctx context.Context, state *PipelineState) error {
	doc, err := s.Source.Load(ctx, state.Ref)
	if err != nil {
		return err
	}
	state.Document = doc
	return nil
}

// BuildRequestStep assembles the extraction request from the document text.
type BuildRequestStep struct {
	ModelID string
	Options protocol.Options
}

func (s *BuildRequestStep) Execute(_ context.Context, state *PipelineState) error {
	state.Request = protocol.NewRequest(state.Document.Text, s.ModelID, s.Options)
	return nil
}

// QueryOracleStep sends the request to the model.
type QueryOracleStep struct {
	Oracle oracle.Oracle
}

func (s *QueryOracleStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	log.Info().Str("ref", state.Ref).Str("model", state.Request.ModelID).Msg("querying oracle")

	raw, err := s.Oracle.Complete(ctx, state.Request)
	if err != nil {
		return err
	}
	state.RawResponse = raw
	return nil
}

// DecodeResponseStep turns the raw model text into statement facts.
type DecodeResponseStep struct {
	Decoder protocol.Decoder
}

func (s *DecodeResponseStep) Execute(_ context.Context, state *PipelineState) error {
	facts, err := s.Decoder.Decode(state.RawResponse, state.Ref)
	if err != nil {
		return err
	}
	state.Facts = facts
	return nil
}

// ReconcileStep validates the extracted facts.
type ReconcileStep struct {
	Config reconcile.Config
}

func (s *ReconcileStep) Execute(ctx context.Context, state *PipelineState) error {
	result := reconcile.Reconcile(state.Facts, s.Config)
	state.Result = &result

	log := logger.FromContext(ctx)
	log.Info().
		Str("statement_id", state.Facts.StatementID).
		Bool("balance_passed", result.Balance.Passed).
		Int("transactions", result.TransactionCount).
		Int("discrepancies", len(result.ConversionDiscrepancies)).
		Msg("statement reconciled")
	return nil
}

// StoreResultStep persists the validation result. A nil repository turns
// the step into a no-op so the pipeline works without BigQuery access.
type StoreResultStep struct {
	Repo infra.ResultRepository
}

func (s *StoreResultStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Repo == nil {
		return nil
	}
	row, err := buildResultRow(state)
	if err != nil {
		return err
	}
	return s.Repo.InsertStatementResult(ctx, row)
}

func buildResultRow(state *PipelineState) (*infra.StatementResultRow, error) {
	facts, result := state.Facts, state.Result

	detail, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("buildResultRow: marshal validation detail: %w", err)
	}

	row := &infra.StatementResultRow{
		ResultID:      uuid.NewString(),
		AnalysisRunID: state.AnalysisRunID,
		StatementID:   facts.StatementID,
		SourceFile:    facts.SourceFile,

		StartBalance:       facts.StartBalance.Parsed.Rat(),
		EndBalance:         facts.EndBalance.Parsed.Rat(),
		ExpectedEndBalance: result.Balance.Expected.Rat(),
		BalanceDelta:       result.Balance.Delta.Rat(),
		BalancePassed:      result.Balance.Passed,

		TransactionCount:        int64(result.TransactionCount),
		ConversionDiscrepancies: int64(len(result.ConversionDiscrepancies)),
		FieldsExamined:          int64(result.FieldsExamined),
		ZeroTransactions:        result.ZeroTransactions,

		ValidationDetail: bigquerylib.NullJSON{JSONVal: string(detail), Valid: true},
		CreatedTS:        time.Now(),
	}
	if !facts.PeriodStart.IsZero() {
		row.PeriodStart = bigquerylib.NullDate{Date: civil.DateOf(facts.PeriodStart), Valid: true}
	}
	if !facts.PeriodEnd.IsZero() {
		row.PeriodEnd = bigquerylib.NullDate{Date: civil.DateOf(facts.PeriodEnd), Valid: true}
	}
	return row, nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewStatementAnalysisPipeline assembles the standard per-statement
// pipeline. repo may be nil to skip persistence.
func NewStatementAnalysisPipeline(
	source extractor.Source,
	llm oracle.Oracle,
	repo infra.ResultRepository,
	modelID string,
	opts protocol.Options,
	decoder protocol.Decoder,
	cfg reconcile.Config,
) *Pipeline {
	return NewPipeline(
		&LoadArtifactStep{Source: source},
		&BuildRequestStep{ModelID: modelID, Options: opts},
		&QueryOracleStep{Oracle: llm},
		&DecodeResponseStep{Decoder: decoder},
		&ReconcileStep{Config: cfg},
		&StoreResultStep{Repo: repo},
	)
}
