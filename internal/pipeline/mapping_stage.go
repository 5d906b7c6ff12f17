package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
)

// StrategyTotalToFirstLine is used when the invoice has only a grand
// total or the model maps nothing.
const StrategyTotalToFirstLine = "total-to-first-line"

type MappingStage struct {
	Model  llm.Model
	Logger *slog.Logger
}

func NewMappingStage(model llm.Model, logger *slog.Logger) *MappingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MappingStage{Model: model, Logger: logger}
}

// MapLines allocates the invoice across poLines, consolidates the
// result per PO line and checks it against the authorized amounts.
func (s *MappingStage) MapLines(ctx context.Context, inv *entity.ExtractedInvoice, poLines []entity.POLine, doc Document, overlay *VendorOverlay) (entity.LineMapping, error) {
	if len(poLines) == 0 {
		return entity.LineMapping{}, common.NewAppError("NO_PO_LINES", "purchase order has no lines", common.ErrNoPOLines)
	}

	var mapping entity.LineMapping
	if inv.TotalOnly() {
		mapping = totalToFirstLine(inv, poLines)
	} else {
		out, err := llm.Extract[entity.LineMapping](ctx, s.Model, llm.ExtractRequest{
			Purpose:      "line_mapping",
			Instructions: llm.LineMapperInstructions,
			Extra:        overlay.poIdentifier(),
			User: doc.userContent(
				jsonBlock("Invoice", inv),
				jsonBlock("PO lines", poLines),
			),
			Image:  doc.Preview,
			Schema: llm.LineMappingSchema(),
		}, s.Logger)
		if err != nil {
			return entity.LineMapping{}, err
		}
		mapping = *out
		if len(mapping.Lines) == 0 {
			s.Logger.Warn("processor.mapping.empty_model_mapping", "file", doc.Path)
			mapping = totalToFirstLine(inv, poLines)
		}
	}

	mapping.Lines = Consolidate(mapping.Lines)
	if err := CheckAllocation(mapping, poLines); err != nil {
		return mapping, err
	}
	s.Logger.Info("processor.mapping.ok", "file", doc.Path, "strategy", mapping.Strategy, "lines", len(mapping.Lines))
	return mapping, nil
}

// totalToFirstLine maps the whole total to the lowest-numbered PO line.
func totalToFirstLine(inv *entity.ExtractedInvoice, poLines []entity.POLine) entity.LineMapping {
	first := poLines[0].Line
	for _, l := range poLines[1:] {
		if l.Line < first {
			first = l.Line
		}
	}
	return entity.LineMapping{
		Strategy: StrategyTotalToFirstLine,
		Lines:    []entity.LineMappingEntry{{POLine: first, Amount: inv.TotalAmount}},
	}
}

// Consolidate sums entries per PO line, rounding half away from zero to
// cents. Lines keep the order in which they were first seen.
func Consolidate(entries []entity.LineMappingEntry) []entity.LineMappingEntry {
	sums := make(map[int]decimal.Decimal, len(entries))
	order := make([]int, 0, len(entries))
	for _, e := range entries {
		cur, seen := sums[e.POLine]
		if !seen {
			order = append(order, e.POLine)
		}
		sums[e.POLine] = cur.Add(decimal.NewFromFloat(e.Amount))
	}
	out := make([]entity.LineMappingEntry, 0, len(order))
	for _, line := range order {
		out = append(out, entity.LineMappingEntry{POLine: line, Amount: sums[line].Round(2).InexactFloat64()})
	}
	return out
}

// AllocationError reports a mapping entry the PO cannot absorb.
type AllocationError struct {
	POLine     int
	Allocated  decimal.Decimal
	Authorized decimal.Decimal
	Err        error
}

func (e *AllocationError) Error() string {
	if e.Err == common.ErrUnknownPOLine {
		return fmt.Sprintf("po line %d: %v", e.POLine, e.Err)
	}
	return fmt.Sprintf("po line %d: allocated %s exceeds authorized %s", e.POLine, e.Allocated.StringFixed(2), e.Authorized.StringFixed(2))
}

func (e *AllocationError) Unwrap() error { return e.Err }

// CheckAllocation verifies every mapped line exists on the PO and that
// no line is allocated more than the sum of its distributions.
func CheckAllocation(mapping entity.LineMapping, poLines []entity.POLine) error {
	authorized := make(map[int]decimal.Decimal, len(poLines))
	for _, l := range poLines {
		authorized[l.Line] = authorized[l.Line].Add(decimal.NewFromFloat(l.Amount))
	}
	allocated := make(map[int]decimal.Decimal, len(mapping.Lines))
	order := make([]int, 0, len(mapping.Lines))
	for _, e := range mapping.Lines {
		if _, ok := authorized[e.POLine]; !ok {
			return &AllocationError{POLine: e.POLine, Err: common.ErrUnknownPOLine}
		}
		if _, seen := allocated[e.POLine]; !seen {
			order = append(order, e.POLine)
		}
		allocated[e.POLine] = allocated[e.POLine].Add(decimal.NewFromFloat(e.Amount))
	}
	for _, line := range order {
		got, limit := allocated[line].Round(2), authorized[line].Round(2)
		if got.GreaterThan(limit) {
			return &AllocationError{POLine: line, Allocated: got, Authorized: limit, Err: common.ErrLineOverflow}
		}
	}
	return nil
}
