// Package extractor consumes the output of the external document
// extraction stage (Docling or pdfplumber runs that turn scanned statement
// PDFs into text-and-tables JSON artifacts). This module never performs
// layout analysis itself; it only loads the persisted artifacts.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ExtractedDocument is one statement's extraction artifact.
type ExtractedDocument struct {
	SourceFile string
	Text       string
	Tables     [][][]string
	PageCount  int
}

// Source loads extraction artifacts by reference (local path or gs:// URI).
type Source interface {
	Load(ctx context.Context, ref string) (*ExtractedDocument, error)
}

// resultFile mirrors the JSON written by the extraction stage.
type resultFile struct {
	File     string          `json:"file"`
	Text     string          `json:"text"`
	Tables   [][][]string    `json:"tables"`
	Pages    json.RawMessage `json:"pages"`
	Metadata struct {
		PageCount int    `json:"page_count"`
		FileName  string `json:"file_name"`
	} `json:"metadata"`
}

// Parse decodes an extraction artifact from raw JSON bytes.
func Parse(data []byte, sourceFile string) (*ExtractedDocument, error) {
	var rf resultFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("Parse %s: %w", sourceFile, err)
	}
	if strings.TrimSpace(rf.Text) == "" {
		return nil, fmt.Errorf("Parse %s: artifact contains no text", sourceFile)
	}
	return &ExtractedDocument{
		SourceFile: sourceFile,
		Text:       rf.Text,
		Tables:     rf.Tables,
		PageCount:  rf.Metadata.PageCount,
	}, nil
}

// FileSource loads extraction artifacts from the local filesystem.
type FileSource struct{}

// Load reads and decodes the artifact at path.
func (FileSource) Load(_ context.Context, path string) (*ExtractedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: read artifact: %w", err)
	}
	return Parse(data, path)
}
