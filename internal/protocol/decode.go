package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nweidner/kontoauszug-analyzer/internal/amount"
	"github.com/nweidner/kontoauszug-analyzer/internal/statement"
)

// ExtractionError reports a model response with no usable statement
// structure. It aborts the statement, not the batch.
type ExtractionError struct {
	SourceFile string
	Reason     string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("protocol: no parseable statement structure in %s: %s", e.SourceFile, e.Reason)
}

// germanDate is the date layout used on the statements.
const germanDate = "02.01.2006"

// Decoder turns raw model text into StatementFacts. Amount strings are
// always re-parsed deterministically; the model's numbers are retained
// only as claims for the reconciliation engine to check.
type Decoder struct {
	Policy amount.Policy
}

// Decode parses the raw model response for one statement. sourceFile is
// used only for error reporting and the resulting facts' provenance.
func (d Decoder) Decode(raw, sourceFile string) (*statement.StatementFacts, error) {
	clean := CleanModelJSON(raw)
	if clean == "" {
		return nil, &ExtractionError{SourceFile: sourceFile, Reason: "empty response"}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &obj); err != nil {
		return nil, &ExtractionError{SourceFile: sourceFile, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	facts := &statement.StatementFacts{SourceFile: sourceFile}

	// Models return "auszug_nummer" as either a string or a bare number.
	switch id := obj["auszug_nummer"].(type) {
	case string:
		facts.StatementID = id
	case float64:
		facts.StatementID = fmt.Sprintf("%d", int64(id))
	}

	start, err := d.decodeBalance(obj, "anfangssaldo")
	if err != nil {
		return nil, fmt.Errorf("Decode %s: %w", sourceFile, err)
	}
	facts.StartBalance = *start

	end, err := d.decodeBalance(obj, "endsaldo")
	if err != nil {
		return nil, fmt.Errorf("Decode %s: %w", sourceFile, err)
	}
	facts.EndBalance = *end

	facts.PeriodStart = start.Date
	facts.PeriodEnd = end.Date

	txs, err := d.decodeTransactions(obj)
	if err != nil {
		return nil, fmt.Errorf("Decode %s: %w", sourceFile, err)
	}
	facts.Transactions = txs

	return facts, nil
}

func (d Decoder) decodeBalance(obj map[string]interface{}, key string) (*statement.Balance, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing required field %q", key)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want object", key, v)
	}

	original, err := getStringField(m, "betrag_original", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	claimed, err := getFloat64Field(m, "betrag_nummer")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	parsed, err := d.Policy.Parse(original)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	b := &statement.Balance{
		Original:      original,
		ClaimedNumber: claimed,
		Parsed:        parsed,
	}

	if dateStr, err := getStringField(m, "datum", false); err == nil && dateStr != "" {
		date, err := time.Parse(germanDate, dateStr)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date %q: %w", key, dateStr, err)
		}
		b.Date = date
	}
	if desc, err := getStringField(m, "beschreibung", false); err == nil {
		b.Description = desc
	}

	return b, nil
}

func (d Decoder) decodeTransactions(obj map[string]interface{}) ([]statement.TransactionRecord, error) {
	txAny, ok := obj["transaktionen"]
	if !ok || txAny == nil {
		return nil, nil
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, fmt.Errorf("'transaktionen' is %T, want array", txAny)
	}

	result := make([]statement.TransactionRecord, 0, len(txSlice))
	for i, item := range txSlice {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("transaktion %d is %T, want object", i, item)
		}

		original, err := getStringField(m, "betrag_original", true)
		if err != nil {
			return nil, fmt.Errorf("transaktion %d: %w", i, err)
		}
		claimed, err := getFloat64Field(m, "betrag_nummer")
		if err != nil {
			return nil, fmt.Errorf("transaktion %d: %w", i, err)
		}
		parsed, err := d.Policy.Parse(original)
		if err != nil {
			return nil, fmt.Errorf("transaktion %d: %w", i, err)
		}

		desc, err := getStringField(m, "beschreibung", false)
		if err != nil {
			return nil, fmt.Errorf("transaktion %d: %w", i, err)
		}

		tx := statement.TransactionRecord{
			Original:      original,
			ClaimedNumber: claimed,
			Parsed:        parsed,
			Description:   desc,
		}

		if dateStr, err := getStringField(m, "datum", false); err == nil && dateStr != "" {
			date, err := time.Parse(germanDate, dateStr)
			if err != nil {
				return nil, fmt.Errorf("transaktion %d: invalid date %q: %w", i, dateStr, err)
			}
			tx.Date = date
		}

		// Valuta: explicit field first, inline annotation second.
		if valutaStr, err := getStringField(m, "valuta", false); err == nil && valutaStr != "" {
			valuta, err := time.Parse(germanDate, valutaStr)
			if err != nil {
				return nil, fmt.Errorf("transaktion %d: invalid valuta %q: %w", i, valutaStr, err)
			}
			tx.ValutaDate = &valuta
		} else {
			tx.ValutaDate = statement.ExtractValutaDate(desc)
		}

		if cat, err := getStringField(m, "kategorie", false); err == nil && cat != "" {
			tx.Category = cat
		} else {
			tx.Category = statement.ClassifyTransaction(desc, parsed)
		}

		tx.WKN, tx.ISIN = statement.ExtractWKNISIN(desc)

		result = append(result, tx)
	}

	return result, nil
}

// CleanModelJSON strips markdown code fences and surrounding junk the model
// may wrap around its JSON despite instructions, keeping only the outermost
// object or array.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost JSON value when there is prose around it.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start != -1 && end > start {
			return strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

// getFloat64Field returns nil when the field is absent, so an omitted
// number is never mistaken for a claimed zero.
func getFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		return &val, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
