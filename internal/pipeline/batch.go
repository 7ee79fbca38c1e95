package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nweidner/kontoauszug-analyzer/internal/extractor"
	infra "github.com/nweidner/kontoauszug-analyzer/internal/infra/bigquery"
	"github.com/nweidner/kontoauszug-analyzer/internal/logger"
	"github.com/nweidner/kontoauszug-analyzer/internal/oracle"
	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
	"github.com/nweidner/kontoauszug-analyzer/internal/reconcile"
	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// Analyzer runs the per-statement pipeline over a batch of extraction
// artifacts and chains the results.
type Analyzer struct {
	Source extractor.Source
	Oracle oracle.Oracle
	Repo   infra.ResultRepository // nil skips persistence

	ModelID    string
	OracleType string // audit label, e.g. "OLLAMA_CHAT"
	Options    protocol.Options
	Decoder    protocol.Decoder
	Config     reconcile.Config

	// Concurrency caps parallel oracle calls; values below 1 mean
	// sequential processing.
	Concurrency int
}

// StatementOutcome is the per-artifact result. Err is set when the
// statement failed extraction or decoding; such statements are excluded
// from the chain and the report but do not abort the batch.
type StatementOutcome struct {
	Ref    string
	Facts  *statement.StatementFacts
	Result reconcile.ValidationResult
	Err    error
}

// BatchResult is the cross-statement artifact for one analysis run.
type BatchResult struct {
	AnalysisRunID string
	Outcomes      []StatementOutcome // in input order
	Continuity    []reconcile.ContinuityResult
	Report        reconcile.AnalysisReport
}

// AnalyzeAll processes every artifact reference, validates balance
// continuity over the period-ordered successful statements and builds the
// aggregate report. Oracle calls may run in parallel; results are
// re-sorted by period start before chain validation. An OrderingError from
// the chain validation aborts the batch.
func (a *Analyzer) AnalyzeAll(ctx context.Context, refs []string) (*BatchResult, error) {
	log := logger.FromContext(ctx)

	runID, err := a.startRun(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := a.processAll(ctx, runID, refs)

	var ordered []*statement.StatementFacts
	var results []reconcile.ValidationResult
	var failedRefs []string
	for _, o := range outcomes {
		if o.Err != nil {
			log.Warn().Str("ref", o.Ref).Err(o.Err).Msg("statement analysis failed")
			failedRefs = append(failedRefs, o.Ref)
			continue
		}
		ordered = append(ordered, o.Facts)
		results = append(results, o.Result)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PeriodStart.Before(ordered[j].PeriodStart)
	})

	continuity, err := reconcile.ValidateChain(ordered, a.Config)
	if err != nil {
		a.failRun(ctx, runID, err)
		return nil, err
	}

	batch := &BatchResult{
		AnalysisRunID: runID,
		Outcomes:      outcomes,
		Continuity:    continuity,
		Report:        reconcile.BuildReport(results, continuity, failedRefs, a.Config),
	}

	if err := a.finishRun(ctx, runID, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// processAll runs the per-statement pipeline for every ref, optionally in
// parallel. Outcome order matches the input order regardless of completion
// order.
func (a *Analyzer) processAll(ctx context.Context, runID string, refs []string) []StatementOutcome {
	outcomes := make([]StatementOutcome, len(refs))

	workers := a.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = a.processOne(ctx, runID, ref)
		}(i, ref)
	}
	wg.Wait()

	return outcomes
}

func (a *Analyzer) processOne(ctx context.Context, runID, ref string) StatementOutcome {
	state := &PipelineState{Ref: ref, AnalysisRunID: runID}
	p := NewStatementAnalysisPipeline(a.Source, a.Oracle, a.Repo, a.ModelID, a.Options, a.Decoder, a.Config)

	if err := p.Execute(ctx, state); err != nil {
		return StatementOutcome{Ref: ref, Err: err}
	}
	return StatementOutcome{Ref: ref, Facts: state.Facts, Result: *state.Result}
}

func (a *Analyzer) startRun(ctx context.Context) (string, error) {
	if a.Repo == nil {
		return uuid.NewString(), nil
	}
	runID, err := a.Repo.StartAnalysisRun(ctx, a.OracleType, a.ModelID)
	if err != nil {
		return "", fmt.Errorf("AnalyzeAll: start analysis run: %w", err)
	}
	return runID, nil
}

func (a *Analyzer) failRun(ctx context.Context, runID string, runErr error) {
	if a.Repo == nil {
		return
	}
	if err := a.Repo.MarkAnalysisRunFailed(ctx, runID, runErr); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("analysis_run_id", runID).Msg("failed to mark run as failed")
	}
}

func (a *Analyzer) finishRun(ctx context.Context, runID string, batch *BatchResult) error {
	if a.Repo == nil {
		return nil
	}

	rows := make([]*infra.ContinuityRow, 0, len(batch.Continuity))
	for _, c := range batch.Continuity {
		rows = append(rows, &infra.ContinuityRow{
			CheckID:         uuid.NewString(),
			AnalysisRunID:   runID,
			FromStatementID: c.FromStatementID,
			ToStatementID:   c.ToStatementID,
			FromEndBalance:  c.FromEndBalance.Rat(),
			ToStartBalance:  c.ToStartBalance.Rat(),
			Delta:           c.Delta.Rat(),
			Passed:          c.Passed,
			CreatedTS:       time.Now(),
		})
	}
	if err := a.Repo.InsertContinuityChecks(ctx, rows); err != nil {
		a.failRun(ctx, runID, err)
		return fmt.Errorf("AnalyzeAll: persist continuity checks: %w", err)
	}

	if err := a.Repo.MarkAnalysisRunSucceeded(ctx, runID, batch.Report.StatementsAnalyzed); err != nil {
		return fmt.Errorf("AnalyzeAll: mark run succeeded: %w", err)
	}
	return nil
}

// Ask answers a free-form question about one statement document through
// the oracle.
func (a *Analyzer) Ask(ctx context.Context, ref, question string) (string, error) {
	doc, err := a.Source.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	req := protocol.BuildQARequest(doc.Text, question, a.ModelID)
	return a.Oracle.Complete(ctx, req)
}
