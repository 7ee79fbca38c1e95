package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/nweidner/kontoauszug-analyzer/internal/extractor"
	infra "github.com/nweidner/kontoauszug-analyzer/internal/infra/bigquery"
	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
	"github.com/nweidner/kontoauszug-analyzer/internal/reconcile"
)

// mockSource serves canned extraction artifacts keyed by ref.
type mockSource struct {
	docs map[string]*extractor.ExtractedDocument
}

func (m *mockSource) Load(_ context.Context, ref string) (*extractor.ExtractedDocument, error) {
	doc, ok := m.docs[ref]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", ref)
	}
	return doc, nil
}

// mockOracle answers with a canned response selected by a marker in the
// document context.
type mockOracle struct {
	responses map[string]string // context marker -> raw response
}

func (m *mockOracle) Complete(_ context.Context, req protocol.Request) (string, error) {
	for marker, resp := range m.responses {
		if strings.Contains(req.Context, marker) {
			return resp, nil
		}
	}
	return "", errors.New("no canned response for context")
}

// mockRepo records persistence calls.
type mockRepo struct {
	started          int
	succeeded        int
	failed           int
	resultRows       []*infra.StatementResultRow
	continuityRows   []*infra.ContinuityRow
	lastRunStatement int
}

func (m *mockRepo) StartAnalysisRun(_ context.Context, _, _ string) (string, error) {
	m.started++
	return "run-1", nil
}

func (m *mockRepo) MarkAnalysisRunFailed(_ context.Context, _ string, _ error) error {
	m.failed++
	return nil
}

func (m *mockRepo) MarkAnalysisRunSucceeded(_ context.Context, _ string, statementCount int) error {
	m.succeeded++
	m.lastRunStatement = statementCount
	return nil
}

func (m *mockRepo) InsertStatementResult(_ context.Context, row *infra.StatementResultRow) error {
	m.resultRows = append(m.resultRows, row)
	return nil
}

func (m *mockRepo) InsertContinuityChecks(_ context.Context, rows []*infra.ContinuityRow) error {
	m.continuityRows = append(m.continuityRows, rows...)
	return nil
}

func (m *mockRepo) Close() error { return nil }

// toNum converts German notation to the float the model would claim.
func toNum(original string) float64 {
	s := strings.ReplaceAll(original, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return f
}

func oracleResponse(id, startOrig, endOrig, startDate, endDate, txOrig string) string {
	return fmt.Sprintf(`{
	  "auszug_nummer": %q,
	  "anfangssaldo": {"betrag_original": %q, "betrag_nummer": %v, "datum": %q},
	  "endsaldo": {"betrag_original": %q, "betrag_nummer": %v, "datum": %q},
	  "transaktionen": [
	    {"datum": %q, "beschreibung": "Gutschrift", "betrag_original": %q, "betrag_nummer": %v}
	  ]
	}`, id, startOrig, toNum(startOrig), startDate, endOrig, toNum(endOrig), endDate, startDate, txOrig, toNum(txOrig))
}

func doc(marker string) *extractor.ExtractedDocument {
	return &extractor.ExtractedDocument{
		SourceFile: marker,
		Text:       "Kontoauszug " + marker,
		PageCount:  1,
	}
}

func newTestAnalyzer(src *mockSource, llm *mockOracle, repo infra.ResultRepository) *Analyzer {
	cfg := reconcile.DefaultConfig()
	return &Analyzer{
		Source:     src,
		Oracle:     llm,
		Repo:       repo,
		ModelID:    "qwen3:8b",
		OracleType: "OLLAMA_CHAT",
		Options:    protocol.DefaultOptions(),
		Config:     cfg,
	}
}

func TestAnalyzeAll(t *testing.T) {
	src := &mockSource{docs: map[string]*extractor.ExtractedDocument{
		"a4.json": doc("4/2022"),
		"a5.json": doc("5/2022"),
	}}
	llm := &mockOracle{responses: map[string]string{
		"4/2022": oracleResponse("4/2022", "1.000,00", "1.100,00", "01.05.2022", "31.05.2022", "100,00"),
		"5/2022": oracleResponse("5/2022", "1.100,00", "1.150,00", "01.06.2022", "30.06.2022", "50,00"),
	}}
	repo := &mockRepo{}

	// Deliberately feed the refs out of chronological order: the batch
	// layer must re-sort by period start before chaining.
	batch, err := newTestAnalyzer(src, llm, repo).AnalyzeAll(context.Background(), []string{"a5.json", "a4.json"})
	if err != nil {
		t.Fatalf("AnalyzeAll error: %v", err)
	}

	if len(batch.Outcomes) != 2 {
		t.Fatalf("got %d outcomes", len(batch.Outcomes))
	}
	if len(batch.Continuity) != 1 {
		t.Fatalf("got %d continuity results, want 1", len(batch.Continuity))
	}
	c := batch.Continuity[0]
	if c.FromStatementID != "4/2022" || c.ToStatementID != "5/2022" {
		t.Errorf("chain order wrong: %s -> %s", c.FromStatementID, c.ToStatementID)
	}
	if !c.Passed {
		t.Errorf("continuity should pass, delta=%s", c.Delta)
	}
	if !batch.Report.OverallPassed {
		t.Errorf("report should pass: %+v", batch.Report)
	}

	if repo.started != 1 || repo.succeeded != 1 || repo.failed != 0 {
		t.Errorf("run lifecycle calls: started=%d succeeded=%d failed=%d", repo.started, repo.succeeded, repo.failed)
	}
	if len(repo.resultRows) != 2 || len(repo.continuityRows) != 1 {
		t.Errorf("persisted rows: %d results, %d continuity", len(repo.resultRows), len(repo.continuityRows))
	}
	if repo.lastRunStatement != 2 {
		t.Errorf("statement count = %d", repo.lastRunStatement)
	}
}

func TestAnalyzeAllIsolatesFailures(t *testing.T) {
	src := &mockSource{docs: map[string]*extractor.ExtractedDocument{
		"good.json": doc("4/2022"),
		"bad.json":  doc("garbled"),
	}}
	llm := &mockOracle{responses: map[string]string{
		"4/2022":  oracleResponse("4/2022", "1.000,00", "1.100,00", "01.05.2022", "31.05.2022", "100,00"),
		"garbled": "Ich konnte den Auszug nicht lesen.",
	}}

	batch, err := newTestAnalyzer(src, llm, nil).AnalyzeAll(context.Background(), []string{"good.json", "bad.json", "missing.json"})
	if err != nil {
		t.Fatalf("AnalyzeAll should not abort on per-statement failures: %v", err)
	}

	var failed int
	for _, o := range batch.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("got %d failed outcomes, want 2", failed)
	}
	if batch.Report.StatementsAnalyzed != 1 {
		t.Errorf("statements analyzed = %d, want 1", batch.Report.StatementsAnalyzed)
	}

	// Failures must not vanish: the report names them and refuses to pass,
	// and the persisted artifact carries them too.
	if batch.Report.OverallPassed {
		t.Error("report must not pass when statements failed")
	}
	if len(batch.Report.FailedStatements) != 2 {
		t.Errorf("failed statements = %v, want bad.json and missing.json", batch.Report.FailedStatements)
	}

	artifact := NewBatchArtifact(batch)
	if len(artifact.Failures) != 2 {
		t.Fatalf("artifact failures = %d, want 2", len(artifact.Failures))
	}
	refs := map[string]bool{}
	for _, f := range artifact.Failures {
		if f.Error == "" {
			t.Errorf("failure %s carries no error text", f.Ref)
		}
		refs[f.Ref] = true
	}
	if !refs["bad.json"] || !refs["missing.json"] {
		t.Errorf("artifact failures missing refs: %v", artifact.Failures)
	}
	if len(artifact.Statements) != 1 {
		t.Errorf("artifact statements = %d, want 1", len(artifact.Statements))
	}
}

func TestAnalyzeAllOrderingError(t *testing.T) {
	src := &mockSource{docs: map[string]*extractor.ExtractedDocument{
		"a.json": doc("1/2022"),
		"b.json": doc("2/2022"),
	}}
	llm := &mockOracle{responses: map[string]string{
		// Overlapping periods.
		"1/2022": oracleResponse("1/2022", "0,00", "0,00", "01.01.2022", "28.02.2022", "0,00"),
		"2/2022": oracleResponse("2/2022", "0,00", "0,00", "15.01.2022", "15.02.2022", "0,00"),
	}}
	repo := &mockRepo{}

	_, err := newTestAnalyzer(src, llm, repo).AnalyzeAll(context.Background(), []string{"a.json", "b.json"})
	var oe *reconcile.OrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OrderingError", err)
	}
	if repo.failed != 1 {
		t.Errorf("run not marked failed: %d", repo.failed)
	}
}

func TestAnalyzeAllConcurrent(t *testing.T) {
	docs := make(map[string]*extractor.ExtractedDocument)
	responses := make(map[string]string)
	refs := make([]string, 0, 5)
	for i := 5; i >= 1; i-- { // reverse chronological input order
		id := fmt.Sprintf("%d/2022", i)
		ref := fmt.Sprintf("a%d.json", i)
		docs[ref] = doc(id)
		start := fmt.Sprintf("0%d.0%d.2022", 1, i)
		end := fmt.Sprintf("2%d.0%d.2022", 8, i)
		responses[id] = oracleResponse(id, "100,00", "100,00", start, end, "0,00")
		refs = append(refs, ref)
	}
	src := &mockSource{docs: docs}
	llm := &mockOracle{responses: responses}

	a := newTestAnalyzer(src, llm, nil)
	a.Concurrency = 4

	batch, err := a.AnalyzeAll(context.Background(), refs)
	if err != nil {
		t.Fatalf("AnalyzeAll error: %v", err)
	}
	if len(batch.Continuity) != 4 {
		t.Fatalf("got %d continuity results, want 4", len(batch.Continuity))
	}
	for i, c := range batch.Continuity {
		wantFrom := fmt.Sprintf("%d/2022", i+1)
		if c.FromStatementID != wantFrom {
			t.Errorf("continuity[%d].From = %s, want %s", i, c.FromStatementID, wantFrom)
		}
	}
	// Outcomes stay in input (reverse) order even with parallel workers.
	if batch.Outcomes[0].Facts.StatementID != "5/2022" {
		t.Errorf("outcome order changed: %s", batch.Outcomes[0].Facts.StatementID)
	}
}

func TestAsk(t *testing.T) {
	src := &mockSource{docs: map[string]*extractor.ExtractedDocument{
		"a4.json": doc("4/2022"),
	}}
	llm := &mockOracle{responses: map[string]string{
		"4/2022": "Der Endsaldo beträgt 450.105,96 EUR.",
	}}

	answer, err := newTestAnalyzer(src, llm, nil).Ask(context.Background(), "a4.json", "Wie hoch ist der Endsaldo?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if !strings.Contains(answer, "450.105,96") {
		t.Errorf("answer = %q", answer)
	}
}
