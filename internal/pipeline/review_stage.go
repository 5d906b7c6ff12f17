package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
)

// Short reasons recorded with a rejected plan.
const (
	ReasonPONotFound        = "po_not_found"
	ReasonLowConfidence     = "low_confidence"
	ReasonEmptyMapping      = "empty_mapping"
	ReasonAllocation        = "allocation"
	ReasonMaxTotal          = "max_total"
	ReasonVendorMismatch    = "vendor_mismatch"
	ReasonModelRejected     = "model_rejected"
	ReasonReviewUnavailable = "review_unavailable"
	ReasonApproved          = "approved"
)

const DefaultMinConfidence = 0.6

// ReviewStage is the gate between a plan and the actuator. It can only
// reject; nothing it does alters the plan.
type ReviewStage struct {
	Model         llm.Model // nil disables the model reviewer
	MinConfidence float64
	Logger        *slog.Logger
}

func NewReviewStage(model llm.Model, minConfidence float64, logger *slog.Logger) *ReviewStage {
	if logger == nil {
		logger = slog.Default()
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &ReviewStage{Model: model, MinConfidence: minConfidence, Logger: logger}
}

type reviewOutput struct {
	Execute bool   `json:"execute"`
	Reason  string `json:"reason"`
}

func reject(short, reason string) entity.ExecutionDecision {
	return entity.ExecutionDecision{Execute: false, Reason: reason, ShortReason: short}
}

// Review runs the deterministic checks in order and, if they all pass,
// the optional model reviewer.
func (s *ReviewStage) Review(ctx context.Context, plan entity.VoucherEntryPlan, overlay *VendorOverlay) entity.ExecutionDecision {
	d := s.check(plan, overlay)
	if d.Execute && s.Model != nil {
		d = s.modelReview(ctx, plan, overlay)
	}
	level := slog.LevelInfo
	if !d.Execute {
		level = slog.LevelWarn
	}
	s.Logger.Log(ctx, level, "processor.review.decision",
		"file", plan.AttachmentPath,
		"execute", d.Execute,
		"short_reason", d.ShortReason,
		"reason", d.Reason,
	)
	return d
}

func (s *ReviewStage) check(plan entity.VoucherEntryPlan, overlay *VendorOverlay) entity.ExecutionDecision {
	if !plan.PO.Found() {
		return reject(ReasonPONotFound, "purchase order not found")
	}
	if plan.PO.Confidence < s.MinConfidence {
		return reject(ReasonLowConfidence,
			fmt.Sprintf("PO confidence %.2f below %.2f", plan.PO.Confidence, s.MinConfidence))
	}
	if len(plan.Mapping.Lines) == 0 {
		return reject(ReasonEmptyMapping, "no line mapping")
	}
	if len(plan.POLines) > 0 {
		if err := CheckAllocation(plan.Mapping, plan.POLines); err != nil {
			return reject(ReasonAllocation, err.Error())
		}
	}
	if overlay != nil {
		if overlay.MaxTotal > 0 && plan.Invoice.TotalAmount > overlay.MaxTotal {
			return reject(ReasonMaxTotal,
				fmt.Sprintf("invoice total %.2f exceeds vendor limit %.2f", plan.Invoice.TotalAmount, overlay.MaxTotal))
		}
		if overlay.RequireVendorMatch && !vendorsMatch(plan.Invoice.VendorName, plan.PO.VendorName) {
			return reject(ReasonVendorMismatch,
				fmt.Sprintf("PO vendor %q does not match invoice vendor %q", plan.PO.VendorName, plan.Invoice.VendorName))
		}
	}
	return entity.ExecutionDecision{Execute: true, Reason: "checks passed", ShortReason: ReasonApproved}
}

func (s *ReviewStage) modelReview(ctx context.Context, plan entity.VoucherEntryPlan, overlay *VendorOverlay) entity.ExecutionDecision {
	out, err := llm.Extract[reviewOutput](ctx, s.Model, llm.ExtractRequest{
		Purpose:      "review",
		Instructions: llm.ReviewInstructions,
		Extra:        overlay.reviewGuidance(),
		User: []string{
			jsonBlock("Invoice", plan.Invoice),
			jsonBlock("PO validation", plan.PO),
			jsonBlock("Line mapping", plan.Mapping),
		},
		Schema: llm.ReviewSchema(),
	}, s.Logger)
	if err != nil {
		return reject(ReasonReviewUnavailable, "review unavailable")
	}
	if !out.Execute {
		reason := strings.TrimSpace(out.Reason)
		if reason == "" {
			reason = "rejected by reviewer"
		}
		return reject(ReasonModelRejected, reason)
	}
	return entity.ExecutionDecision{Execute: true, Reason: out.Reason, ShortReason: ReasonApproved}
}

var vendorStopTokens = map[string]bool{
	"inc": true, "llc": true, "co": true, "corp": true, "corporation": true,
	"company": true, "ltd": true, "the": true, "of": true, "and": true,
}

// vendorsMatch reports whether two vendor names share a significant token.
func vendorsMatch(a, b string) bool {
	right := map[string]bool{}
	for _, t := range strings.Fields(constants.CanonicalVendorKey(b)) {
		right[t] = true
	}
	for _, t := range strings.Fields(constants.CanonicalVendorKey(a)) {
		if !vendorStopTokens[t] && right[t] {
			return true
		}
	}
	return false
}
