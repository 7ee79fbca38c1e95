// Package oracle abstracts the language model behind the extraction
// protocol. Adapters exist for Gemini and for a self-hosted Ollama server;
// everything downstream only sees free-form response text.
package oracle

import (
	"context"

	"github.com/nweidner/kontoauszug-analyzer/internal/protocol"
)

// Oracle answers one extraction or question-answering request with raw
// model text. Implementations must honor ctx cancellation.
type Oracle interface {
	Complete(ctx context.Context, req protocol.Request) (string, error)
}
