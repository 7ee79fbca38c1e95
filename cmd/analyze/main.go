package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nweidner/kontoauszug-analyzer/internal/amount"
	"github.com/nweidner/kontoauszug-analyzer/internal/extractor"
	infraBQ "github.com/nweidner/kontoauszug-analyzer/internal/infra/bigquery"
	"github.com/nweidner/kontoauszug-analyzer/internal/logger"
	"github.com/nweidner/kontoauszug-analyzer/internal/oracle"
	"github.com/nweidner/kontoauszug-analyzer/internal/pipeline"
	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
	"github.com/nweidner/kontoauszug-analyzer/internal/reconcile"
)

func main() {
	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "ask":
		runAsk(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Kontoauszug Analyzer")
	fmt.Println("\nUsage:")
	fmt.Println("  analyze <command> [options] [files...]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Analyze one or more statement extraction artifacts")
	fmt.Println("  ask       Ask a free-form question about one statement document")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nArtifacts are extractor result JSON files, local paths or gs:// URIs.")
	fmt.Println("Run 'analyze <command> -h' for more information on a command.")
}

// autoSource routes gs:// references to GCS and everything else to disk.
type autoSource struct {
	file extractor.FileSource
	gcs  *extractor.GCSSource
}

func (s *autoSource) Load(ctx context.Context, ref string) (*extractor.ExtractedDocument, error) {
	if strings.HasPrefix(ref, "gs://") {
		return s.gcs.Load(ctx, ref)
	}
	return s.file.Load(ctx, ref)
}

func runAnalyze(log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	modelID := fs.String("model", "qwen3:8b", "Model ID to query")
	ollamaURL := fs.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	useGemini := fs.Bool("gemini", false, "Query Gemini instead of Ollama")
	concurrency := fs.Int("concurrency", 1, "Parallel oracle calls")
	epsilon := fs.String("epsilon", "0.01", "Balance check tolerance in EUR")
	rateThreshold := fs.Float64("discrepancy-rate", 0, "Fail the report above this conversion discrepancy rate (0 disables)")
	decimalComma := fs.Bool("decimal-comma", false, "Treat a lone separator before three digits as a decimal mark")
	outPath := fs.String("out", "", "Write the batch artifact JSON to this file")
	bqProject := fs.String("bq-project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "BigQuery project for result persistence (empty skips)")
	credentials := fs.String("credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "GCP credentials file")
	fs.Parse(os.Args[2:])

	refs := fs.Args()
	if len(refs) == 0 {
		log.Fatal().Msg("Error: at least one artifact file or gs:// URI is required")
	}

	eps, err := decimal.NewFromString(*epsilon)
	if err != nil {
		log.Fatal().Err(err).Str("epsilon", *epsilon).Msg("Invalid epsilon")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var repo infraBQ.ResultRepository
	if *bqProject != "" {
		bq, err := infraBQ.NewBigQueryResultRepository(ctx, *bqProject, *credentials)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer bq.Close()
		repo = bq
	}

	cfg := reconcile.DefaultConfig()
	cfg.Epsilon = eps
	cfg.DiscrepancyRateThreshold = *rateThreshold

	analyzer := &pipeline.Analyzer{
		Source:      &autoSource{gcs: extractor.NewGCSSource(*credentials)},
		Oracle:      buildOracle(*useGemini, *ollamaURL),
		Repo:        repo,
		ModelID:     *modelID,
		OracleType:  oracleType(*useGemini),
		Options:     protocol.DefaultOptions(),
		Decoder:     protocol.Decoder{Policy: amount.Policy{ThreeDigitGroupIsDecimal: *decimalComma}},
		Config:      cfg,
		Concurrency: *concurrency,
	}

	log.Info().Int("statements", len(refs)).Str("model", *modelID).Msg("Starting analysis")

	batch, err := analyzer.AnalyzeAll(ctx, refs)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	artifact := pipeline.NewBatchArtifact(batch)
	if *outPath != "" {
		if err := writeArtifact(*outPath, artifact); err != nil {
			log.Fatal().Err(err).Msg("Failed to write batch artifact")
		}
		log.Info().Str("path", *outPath).Msg("Batch artifact written")
	}

	printReport(batch)

	if !batch.Report.OverallPassed {
		os.Exit(1)
	}
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	modelID := fs.String("model", "qwen3:8b", "Model ID to query")
	ollamaURL := fs.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	useGemini := fs.Bool("gemini", false, "Query Gemini instead of Ollama")
	credentials := fs.String("credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "GCP credentials file")
	question := fs.String("question", "", "Question to ask about the document")
	fs.Parse(os.Args[2:])

	if *question == "" || fs.NArg() != 1 {
		log.Fatal().Msg("Usage: analyze ask -question TEXT <artifact>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	analyzer := &pipeline.Analyzer{
		Source:  &autoSource{gcs: extractor.NewGCSSource(*credentials)},
		Oracle:  buildOracle(*useGemini, *ollamaURL),
		ModelID: *modelID,
	}

	answer, err := analyzer.Ask(ctx, fs.Arg(0), *question)
	if err != nil {
		log.Fatal().Err(err).Msg("Question failed")
	}
	fmt.Println(answer)
}

func buildOracle(useGemini bool, ollamaURL string) oracle.Oracle {
	if useGemini {
		return oracle.NewGeminiOracle()
	}
	return oracle.NewOllamaOracle(ollamaURL)
}

func oracleType(useGemini bool) string {
	if useGemini {
		return "GEMINI"
	}
	return "OLLAMA_CHAT"
}

func writeArtifact(path string, artifact pipeline.BatchArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("writeArtifact: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func printReport(batch *pipeline.BatchResult) {
	r := batch.Report

	fmt.Println("\n=== Analysis Report ===")
	fmt.Printf("Run ID:              %s\n", batch.AnalysisRunID)
	fmt.Printf("Statements analyzed: %d\n", r.StatementsAnalyzed)
	if len(r.FailedStatements) > 0 {
		fmt.Printf("Statements failed:   %d (%s)\n", len(r.FailedStatements), strings.Join(r.FailedStatements, ", "))
	}
	fmt.Printf("Balance checks:      %d/%d passed\n", r.BalanceChecksPassed, r.StatementsAnalyzed)
	fmt.Printf("Continuity checks:   %d/%d passed\n", r.ContinuityChecksPassed, r.ContinuityChecksTotal)
	fmt.Printf("Discrepancies:       %d of %d fields (%.2f%%)\n", r.DiscrepancyCount, r.FieldsExamined, r.DiscrepancyRate*100)
	if len(r.ZeroTransactionStatements) > 0 {
		fmt.Printf("Warnings:            %d statement(s) without transactions: %s\n",
			len(r.ZeroTransactionStatements), strings.Join(r.ZeroTransactionStatements, ", "))
	}
	if r.OverallPassed {
		fmt.Println("Result:              PASSED")
	} else {
		fmt.Println("Result:              FAILED")
	}

	for _, o := range batch.Outcomes {
		if o.Err != nil {
			fmt.Printf("\nFAILED %s: %v\n", o.Ref, o.Err)
		}
	}
	fmt.Println()
}
