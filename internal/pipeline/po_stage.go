package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/repository"
)

// POStage lets the model search the PO registry and pick the purchase
// order an invoice bills against.
type POStage struct {
	Model    llm.Model
	Registry repository.PORegistry
	Logger   *slog.Logger
}

func NewPOStage(model llm.Model, registry repository.PORegistry, logger *slog.Logger) *POStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &POStage{Model: model, Registry: registry, Logger: logger}
}

type poIdentification struct {
	POID       *string  `json:"po_id"`
	VendorID   *string  `json:"vendor_id"`
	VendorName *string  `json:"vendor_name"`
	Confidence *float64 `json:"confidence"`
}

type poSearchArgs struct {
	Pattern string `json:"pattern"`
}

// SearchTool exposes the registry wildcard search to the model.
func (s *POStage) SearchTool() llm.Tool {
	return llm.Tool{
		Name:        "po_search",
		Description: "Search purchase orders by id with SQL LIKE wildcards. Returns po_id, vendor_id, vendor_name, status and business_unit.",
		Parameters:  llm.POSearchParameters(),
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args poSearchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("bad po_search arguments: %w", err)
			}
			if strings.Trim(args.Pattern, "% ") == "" {
				return nil, fmt.Errorf("pattern must contain part of a PO id")
			}
			rows, err := s.Registry.SearchCandidates(ctx, args.Pattern)
			if err != nil {
				return nil, err
			}
			s.Logger.Debug("processor.po.search", "pattern", args.Pattern, "hits", len(rows))
			return rows, nil
		},
	}
}

// IdentifyPO returns the chosen PO, or the zero PurchaseOrder when the
// model finds no match. Model failure is an error.
func (s *POStage) IdentifyPO(ctx context.Context, inv *entity.ExtractedInvoice, doc Document, overlay *VendorOverlay) (entity.PurchaseOrder, error) {
	user := []string{
		"Invoice vendor: " + inv.VendorName,
		"Raw PO text: " + inv.RawPO(),
		"Fuzzy PO candidates: " + strings.Join(inv.FuzzyPOCandidates, ", "),
	}
	out, err := llm.Extract[poIdentification](ctx, s.Model, llm.ExtractRequest{
		Purpose:      "po_identifier",
		Instructions: llm.POIdentifierInstructions,
		Extra:        overlay.poIdentifier(),
		User:         doc.userContent(user...),
		Image:        doc.Preview,
		Schema:       llm.POIdentificationSchema(),
		Tools:        []llm.Tool{s.SearchTool()},
	}, s.Logger)
	if err != nil {
		return entity.PurchaseOrder{}, err
	}

	po := toPurchaseOrder(out)
	if !po.Found() {
		s.Logger.Warn("processor.po.not_found", "file", doc.Path, "raw_po", inv.RawPO())
		return po, nil
	}
	s.Logger.Info("processor.po.ok", "file", doc.Path, "po_id", po.POID, "confidence", po.Confidence)
	return po, nil
}

func toPurchaseOrder(out *poIdentification) entity.PurchaseOrder {
	if out == nil || out.POID == nil || strings.TrimSpace(*out.POID) == "" {
		return entity.PurchaseOrder{}
	}
	po := entity.PurchaseOrder{POID: strings.TrimSpace(*out.POID)}
	if out.VendorID != nil {
		po.VendorID = *out.VendorID
	}
	if out.VendorName != nil {
		po.VendorName = *out.VendorName
	}
	if out.Confidence != nil {
		po.Confidence = *out.Confidence
	}
	return po
}
