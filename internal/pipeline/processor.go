package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/actuator"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/metrics"
	"github.com/fiscalops/apbots/internal/ocr"
	"github.com/fiscalops/apbots/internal/repository"
)

// Ingestor turns a file into text and an optional preview image.
type Ingestor interface {
	Ingest(ctx context.Context, path string, opts ocr.Options) ocr.Result
}

// ProcessOptions are per-run settings.
type ProcessOptions struct {
	TestMode bool
	OCR      ocr.Options
}

// Processor runs one invoice through every stage up to the actuator.
type Processor struct {
	Ingestor Ingestor
	Vendor   *VendorStage
	Extract  *ExtractStage
	PO       *POStage
	Registry repository.PORegistry
	Mapping  *MappingStage
	Review   *ReviewStage
	Actuator actuator.Actuator
	Logger   *slog.Logger
}

// Deps wires a Processor.
type Deps struct {
	Ingestor      Ingestor
	Model         llm.Model
	Registry      repository.PORegistry
	Overlays      *Overlays
	Actuator      actuator.Actuator
	MinConfidence float64
	ModelReview   bool
	Logger        *slog.Logger
}

func NewProcessor(d Deps) *Processor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	act := d.Actuator
	if act == nil {
		act = actuator.NewDryRun()
	}
	var reviewer llm.Model
	if d.ModelReview {
		reviewer = d.Model
	}
	return &Processor{
		Ingestor: d.Ingestor,
		Vendor:   NewVendorStage(d.Model, d.Overlays, logger),
		Extract:  NewExtractStage(d.Model, logger),
		PO:       NewPOStage(d.Model, d.Registry, logger),
		Registry: d.Registry,
		Mapping:  NewMappingStage(d.Model, logger),
		Review:   NewReviewStage(reviewer, d.MinConfidence, logger),
		Actuator: act,
		Logger:   logger,
	}
}

// ProcessFile runs one document end to end. A stage error is returned
// together with a report whose Outcome is failure. A review rejection
// is not an error; the report carries identifier ReviewBlocked.
func (p *Processor) ProcessFile(ctx context.Context, path string, opts ProcessOptions) (entity.DocumentReport, error) {
	report := entity.DocumentReport{File: filepath.Base(path), Outcome: constants.OutcomeFailure}
	log := p.Logger.With("file", report.File)
	start := time.Now()

	// PO identification and line mapping always get a page image, even
	// for scans; extraction follows the caller's preview setting.
	ingestOpts := opts.OCR
	ingestOpts.IncludePreviewOnOCR = true

	t := time.Now()
	res := p.Ingestor.Ingest(ctx, path, ingestOpts)
	metrics.ObserveStage("ingest", t)
	if !res.Success && len(res.Preview) == 0 {
		return report, fmt.Errorf("ingest: %s", res.Description)
	}
	log.Info("processor.ingest.ok", "method", res.Method, "pages", res.PageCount, "chars", len(res.Text))
	doc := DocumentFromResult(path, res)
	extractDoc := doc
	if res.Success && res.Method == ocr.MethodTesseract && !opts.OCR.IncludePreviewOnOCR {
		extractDoc.Preview = nil
	}

	t = time.Now()
	vendor, overlay := p.Vendor.DetectVendor(ctx, extractDoc)
	metrics.ObserveStage("vendor", t)
	report.Vendor = vendor

	t = time.Now()
	inv, err := p.Extract.Run(ctx, extractDoc, overlay)
	metrics.ObserveStage("extract", t)
	if err != nil {
		report.Identifier = constants.IdentifierExtractionFailed
		return report, fmt.Errorf("extract: %w", err)
	}
	report.InvoiceNumber = inv.InvoiceNumber
	report.Amount = inv.TotalAmount
	if report.Vendor == "" {
		report.Vendor = inv.VendorName
	}

	t = time.Now()
	po, err := p.PO.IdentifyPO(ctx, inv, doc, overlay)
	metrics.ObserveStage("po_identify", t)
	if err != nil {
		return report, fmt.Errorf("identify po: %w", err)
	}

	plan := entity.VoucherEntryPlan{
		PO:             po,
		Invoice:        *inv,
		Mapping:        entity.LineMapping{},
		AttachmentPath: path,
		TestMode:       opts.TestMode,
	}
	if po.Found() {
		t = time.Now()
		lines, err := p.Registry.LoadLines(ctx, po.POID)
		if err != nil {
			return report, fmt.Errorf("load po lines: %w", err)
		}
		plan.POLines = lines
		plan.Mapping, err = p.Mapping.MapLines(ctx, inv, lines, doc, overlay)
		metrics.ObserveStage("mapping", t)
		if err != nil {
			var ae *AllocationError
			if errors.As(err, &ae) {
				log.Warn("processor.mapping.allocation_rejected", "po_line", ae.POLine, "error", err)
			}
			return report, fmt.Errorf("map lines: %w", err)
		}
	}

	t = time.Now()
	decision := p.Review.Review(ctx, plan, overlay)
	metrics.ObserveStage("review", t)
	report.Decision = &decision
	if !decision.Execute {
		report.Identifier = constants.IdentifierReviewBlocked
		report.Message = decision.Reason
		log.Info("processor.done", "outcome", report.Outcome, "identifier", report.Identifier,
			"elapsed_ms", time.Since(start).Milliseconds())
		return report, nil
	}

	t = time.Now()
	result, err := p.Actuator.Submit(ctx, plan)
	metrics.ObserveStage("actuator", t)
	if err != nil {
		return report, fmt.Errorf("actuator: %w", err)
	}
	report.Identifier = result.Identifier
	report.Outcome = actuator.Classify(result)
	if result.Alert != nil {
		report.Message = *result.Alert
	}

	log.Info("processor.done",
		"outcome", report.Outcome,
		"identifier", report.Identifier,
		"invoice", report.InvoiceNumber,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}
