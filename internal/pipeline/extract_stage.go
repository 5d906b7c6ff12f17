package pipeline

import (
	"context"
	"log/slog"

	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
)

type ExtractStage struct {
	Model  llm.Model
	Logger *slog.Logger
}

func NewExtractStage(model llm.Model, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Model: model, Logger: logger}
}

// Run extracts the invoice and guarantees at least one line.
func (s *ExtractStage) Run(ctx context.Context, doc Document, overlay *VendorOverlay) (*entity.ExtractedInvoice, error) {
	inv, err := llm.Extract[entity.ExtractedInvoice](ctx, s.Model, llm.ExtractRequest{
		Purpose:      "invoice",
		Instructions: llm.InvoiceExtractionInstructions,
		Extra:        overlay.extraction(),
		User:         doc.userContent(),
		Image:        doc.Preview,
		Schema:       llm.InvoiceSchema(),
		Synonyms:     llm.InvoiceSynonyms,
	}, s.Logger)
	if err != nil {
		return nil, err
	}
	inv.EnsureLines()
	s.Logger.Info("processor.extract.ok",
		"file", doc.Path,
		"invoice", inv.InvoiceNumber,
		"vendor", inv.VendorName,
		"total", inv.TotalAmount,
		"lines", len(inv.Lines),
	)
	return inv, nil
}
