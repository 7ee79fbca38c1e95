// Package protocol defines the extraction contract between this module and
// the language model: what the prompt asks for, and how the semi-structured
// response is decoded back into statement facts. The parallel script
// versions of the original workflow are collapsed into one prompt builder
// driven by option flags.
package protocol

import (
	"fmt"
	"strings"
)

// Options select which refinements of the extraction prompt are active.
// All three correspond to hard-won fixes for model failure modes: partial
// summation, silent misconversion, and skipped transactions.
type Options struct {
	// DualRepresentation asks for every amount twice: the exact document
	// string and the model's own numeric conversion.
	DualRepresentation bool

	// StepByStepValidation asks the model to show the summation formula
	// and its own balance check.
	StepByStepValidation bool

	// WorkedExample injects a multi-transaction summation example into
	// the prompt. Without it models tend to sum only a subset.
	WorkedExample bool
}

// DefaultOptions enables every refinement.
func DefaultOptions() Options {
	return Options{
		DualRepresentation:   true,
		StepByStepValidation: true,
		WorkedExample:        true,
	}
}

// Request is what gets sent to the model for one statement.
type Request struct {
	Prompt  string
	Context string // extracted document text
	ModelID string
}

// SystemInstruction is the role given to the model for every extraction
// request.
const SystemInstruction = "Du bist ein präziser Dokumentenanalyse-Assistent. " +
	"Du musst JEDEN Betrag ZWEIMAL angeben: einmal als Original-String " +
	"(betrag_original) und einmal als konvertierte Zahl (betrag_nummer)."

// maxContextLen caps the document text included in a request.
const maxContextLen = 20000

// NewRequest assembles the extraction request for one statement document.
func NewRequest(docText, modelID string, opts Options) Request {
	if len(docText) > maxContextLen {
		docText = docText[:maxContextLen]
	}
	return Request{
		Prompt:  buildPrompt(opts),
		Context: docText,
		ModelID: modelID,
	}
}

// buildPrompt constructs the extraction instructions. The response must be
// strict JSON with auszug_nummer, anfangssaldo, endsaldo and transaktionen.
func buildPrompt(opts Options) string {
	var b strings.Builder

	b.WriteString("KONTOAUSZUG ANALYSE:\n\n")

	if opts.DualRepresentation {
		b.WriteString("WICHTIG: DUALE ZAHLENFORMAT-ANGABE\n")
		b.WriteString("Für JEDEN Geldbetrag musst du ZWEI Werte angeben:\n")
		b.WriteString("1. \"betrag_original\": Der EXAKTE String wie er im Dokument steht (mit Punkt/Komma)\n")
		b.WriteString("2. \"betrag_nummer\": Die konvertierte Dezimalzahl\n\n")
		b.WriteString("DEUTSCHES FORMAT KONVERTIERUNG:\n")
		b.WriteString("- \"450.105,96\" -> betrag_original: \"450.105,96\", betrag_nummer: 450105.96\n")
		b.WriteString("- \"1.234,56\" -> betrag_original: \"1.234,56\", betrag_nummer: 1234.56\n")
		b.WriteString("- \"-392,33\" -> betrag_original: \"-392,33\", betrag_nummer: -392.33\n\n")
	}

	b.WriteString("EXTRAKTIONS-STRUKTUR:\n\n")
	b.WriteString("1. AUSZUGSNUMMER: Finde \"Kontoauszug X/JAHR\" -> \"auszug_nummer\": \"X/JAHR\"\n\n")
	b.WriteString("2. ANFANGSSALDO: Suche \"Kontostand am [DATUM], Auszug Nr. [VORHERIGE_NR]\"\n")
	b.WriteString("   {\"anfangssaldo\": {\"betrag_original\": \"405.107,75\", \"betrag_nummer\": 405107.75, \"datum\": \"29.04.2022\", \"beschreibung\": \"...\"}}\n\n")
	b.WriteString("3. ENDSALDO: Suche \"Kontostand am [DATUM] um [UHRZEIT] Uhr\"\n")
	b.WriteString("   {\"endsaldo\": {\"betrag_original\": \"450.105,96\", \"betrag_nummer\": 450105.96, \"datum\": \"31.05.2022\", \"beschreibung\": \"...\"}}\n\n")
	b.WriteString("4. TRANSAKTIONEN: Für JEDE Transaktion:\n")
	b.WriteString("   {\"datum\": \"02.05.2022\", \"beschreibung\": \"Entgeltabrechnung\", \"betrag_original\": \"-1,95\", \"betrag_nummer\": -1.95, \"valuta\": \"30.04.2022\"}\n\n")

	if opts.StepByStepValidation {
		b.WriteString("5. VALIDIERUNG: Summiere ALLE betrag_nummer Werte der Transaktionen\n")
		b.WriteString("   und gib die Rechnung als \"transaktionen_summe_berechnung\" an.\n\n")
	}

	if opts.WorkedExample {
		b.WriteString(workedSummationExample)
		b.WriteString("\n")
	}

	b.WriteString("KRITISCH:\n")
	b.WriteString("- NIEMALS nur erste/letzte Transaktion summieren, IMMER alle Transaktionen!\n")
	b.WriteString("- Original-Strings EXAKT wie im Dokument (nicht verändern!)\n")
	b.WriteString("- Zahlen korrekt konvertieren (Punkt entfernen, Komma wird Punkt)\n\n")
	b.WriteString("Gib die Analyse als strukturiertes JSON zurück. Keine Markdown-Codeblöcke.\n")

	return b.String()
}

// workedSummationExample shows a complete multi-transaction summation so
// the model does not stop after the first few entries.
const workedSummationExample = `BEISPIEL MIT 4 TRANSAKTIONEN:
"transaktionen": [
  {"betrag_original": "-170,86", "betrag_nummer": -170.86},
  {"betrag_original": "-1,95", "betrag_nummer": -1.95},
  {"betrag_original": "37.000,00", "betrag_nummer": 37000.00},
  {"betrag_original": "-11,25", "betrag_nummer": -11.25}
]
"transaktionen_summe_berechnung": "-170.86 + (-1.95) + 37000.00 + (-11.25)"
"transaktionen_summe_nummer": 36815.94
`

// BuildQARequest assembles a free-form question-answering request over the
// extracted document text.
func BuildQARequest(docText, question, modelID string) Request {
	if len(docText) > maxContextLen {
		docText = docText[:maxContextLen]
	}
	return Request{
		Prompt:  fmt.Sprintf("Beantworte die folgende Frage anhand des Dokuments:\n\n%s", question),
		Context: docText,
		ModelID: modelID,
	}
}
