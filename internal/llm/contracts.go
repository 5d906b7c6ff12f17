package llm

import (
	"context"
	"encoding/json"
)

// Schema names the JSON Schema the model output must satisfy.
type Schema struct {
	Name       string
	Definition map[string]any
}

// ToolHandler executes one tool call and returns a JSON-encodable result.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a function the model may call while producing its answer.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     ToolHandler
}

// Request is one structured-output call. Image is JPEG bytes or nil.
type Request struct {
	Purpose string
	System  string
	User    []string
	Image   []byte
	Schema  Schema
	Tools   []Tool
}

// Model is the narrow boundary to a language model provider.
// Implementations run any tool-call loop themselves and return the
// final JSON document.
type Model interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// ExtractRequest drives Extract.
type ExtractRequest struct {
	Purpose      string // log/metric label: "invoice", "po_identifier", ...
	Instructions string // base instructions
	Extra        string // vendor-specific instructions, appended
	User         []string
	Image        []byte
	Schema       Schema
	Tools        []Tool
	Synonyms     map[string]string // lenient renames, e.g. "po_number" -> "purchase_order_raw"
}
