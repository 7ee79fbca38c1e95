package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/nweidner/kontoauszug-analyzer/internal/reconcile"
	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// TransactionArtifact is the persisted JSON shape of one transaction.
type TransactionArtifact struct {
	BetragOriginal string   `json:"betrag_original"`
	BetragNummer   *float64 `json:"betrag_nummer,omitempty"`
	Datum          string   `json:"datum,omitempty"`
	Valuta         string   `json:"valuta,omitempty"`
	Kategorie      string   `json:"kategorie,omitempty"`
	Beschreibung   string   `json:"beschreibung,omitempty"`
}

// StatementArtifact is the persisted per-statement JSON shape.
type StatementArtifact struct {
	StatementID  string                     `json:"statement_id"`
	SourceFile   string                     `json:"source_file,omitempty"`
	StartBalance decimal.Decimal            `json:"start_balance"`
	EndBalance   decimal.Decimal            `json:"end_balance"`
	Transactions []TransactionArtifact      `json:"transactions"`
	Validation   reconcile.ValidationResult `json:"validation"`
}

// StatementFailure records an artifact that never produced statement facts.
type StatementFailure struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// BatchArtifact is the persisted cross-statement JSON shape for one run.
type BatchArtifact struct {
	AnalysisRunID string                       `json:"analysis_run_id"`
	Statements    []StatementArtifact          `json:"statements"`
	Failures      []StatementFailure           `json:"failures,omitempty"`
	Continuity    []reconcile.ContinuityResult `json:"continuity"`
	Report        reconcile.AnalysisReport     `json:"report"`
}

const germanDate = "02.01.2006"

// NewStatementArtifact flattens facts and their validation result into the
// persisted shape.
func NewStatementArtifact(facts *statement.StatementFacts, result reconcile.ValidationResult) StatementArtifact {
	txs := make([]TransactionArtifact, 0, len(facts.Transactions))
	for _, tx := range facts.Transactions {
		ta := TransactionArtifact{
			BetragOriginal: tx.Original,
			BetragNummer:   tx.ClaimedNumber,
			Kategorie:      tx.Category,
			Beschreibung:   tx.Description,
		}
		if !tx.Date.IsZero() {
			ta.Datum = tx.Date.Format(germanDate)
		}
		if tx.ValutaDate != nil {
			ta.Valuta = tx.ValutaDate.Format(germanDate)
		}
		txs = append(txs, ta)
	}

	return StatementArtifact{
		StatementID:  facts.StatementID,
		SourceFile:   facts.SourceFile,
		StartBalance: facts.StartBalance.Parsed,
		EndBalance:   facts.EndBalance.Parsed,
		Transactions: txs,
		Validation:   result,
	}
}

// NewBatchArtifact assembles the cross-statement artifact from a batch
// result. Failed statements are carried as failures so the persisted
// artifact accounts for every input.
func NewBatchArtifact(batch *BatchResult) BatchArtifact {
	statements := make([]StatementArtifact, 0, len(batch.Outcomes))
	var failures []StatementFailure
	for _, o := range batch.Outcomes {
		if o.Err != nil {
			failures = append(failures, StatementFailure{Ref: o.Ref, Error: o.Err.Error()})
			continue
		}
		statements = append(statements, NewStatementArtifact(o.Facts, o.Result))
	}
	return BatchArtifact{
		AnalysisRunID: batch.AnalysisRunID,
		Statements:    statements,
		Failures:      failures,
		Continuity:    batch.Continuity,
		Report:        batch.Report,
	}
}
