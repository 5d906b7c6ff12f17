package pipeline

import (
	"encoding/json"

	"github.com/fiscalops/apbots/internal/ocr"
)

// Document is one ingested file as the model stages see it.
type Document struct {
	Path    string
	Text    string
	Preview []byte
}

// DocumentFromResult adapts an ingestion result.
func DocumentFromResult(path string, res ocr.Result) Document {
	return Document{Path: path, Text: res.Text, Preview: res.Preview}
}

func (d Document) userContent(extra ...string) []string {
	out := make([]string, 0, len(extra)+1)
	out = append(out, extra...)
	if d.Text != "" {
		out = append(out, "Document text:\n"+d.Text)
	}
	return out
}

// jsonBlock renders v as a labeled JSON block for model input.
func jsonBlock(label string, v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return label + ": <unavailable>"
	}
	return label + ":\n" + string(b)
}
