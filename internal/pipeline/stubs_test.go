package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/ocr"
)

// scriptedModel answers by request purpose.
type scriptedModel struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	before    map[string]func(ctx context.Context, req llm.Request)
	calls     []llm.Request
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		responses: map[string]string{},
		errs:      map[string]error{},
		before:    map[string]func(context.Context, llm.Request){},
	}
}

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	hook := m.before[req.Purpose]
	err := m.errs[req.Purpose]
	resp, ok := m.responses[req.Purpose]
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unexpected purpose %q", req.Purpose)
	}
	return json.RawMessage(resp), nil
}

func (m *scriptedModel) purposes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Purpose)
	}
	return out
}

func (m *scriptedModel) call(purpose string) (llm.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.Purpose == purpose {
			return c, true
		}
	}
	return llm.Request{}, false
}

type stubRegistry struct {
	mu       sync.Mutex
	patterns []string
	rows     []entity.POCandidate
	lines    map[string][]entity.POLine
}

func (r *stubRegistry) SearchCandidates(_ context.Context, pattern string) ([]entity.POCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	return r.rows, nil
}

func (r *stubRegistry) LoadLines(_ context.Context, poID string) ([]entity.POLine, error) {
	return r.lines[poID], nil
}

type stubIngestor struct {
	res ocr.Result
}

func (s stubIngestor) Ingest(context.Context, string, ocr.Options) ocr.Result {
	return s.res
}

// scanIngestor behaves like OCR ingestion: the page image is only
// returned when the caller asks for it.
type scanIngestor struct {
	mu   sync.Mutex
	opts []ocr.Options
}

func (s *scanIngestor) Ingest(_ context.Context, _ string, opts ocr.Options) ocr.Result {
	s.mu.Lock()
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	res := ocr.Result{Success: true, Text: "INVOICE INV-1001 PO KERNH-227878", Method: ocr.MethodTesseract, PageCount: 1}
	if opts.IncludePreviewOnOCR {
		res.Preview = []byte{0xff, 0xd8, 0xff, 0xe0}
	}
	return res
}

type stubActuator struct {
	result entity.ActuatorResult
	err    error
	plans  []entity.VoucherEntryPlan
}

func (a *stubActuator) Submit(_ context.Context, plan entity.VoucherEntryPlan) (entity.ActuatorResult, error) {
	a.plans = append(a.plans, plan)
	return a.result, a.err
}

const invoiceJSON = `{
  "invoice_number": "INV-1001",
  "vendor_name": "Grainger, Inc.",
  "invoice_date": "2024-03-01",
  "total_amount": 150.00,
  "purchase_order_raw": "KERNH-227878",
  "fuzzy_po_candidates": ["227878"],
  "lines": [
    {"description": "Gloves", "quantity": 2, "unit_price": 50, "line_amount": 100.00},
    {"description": "Tape", "quantity": null, "unit_price": null, "line_amount": 50.00}
  ]
}`

const totalOnlyInvoiceJSON = `{
  "invoice_number": "INV-2002",
  "vendor_name": "Grainger",
  "invoice_date": "2024-03-02",
  "total_amount": 80.00,
  "purchase_order_raw": null,
  "fuzzy_po_candidates": [],
  "lines": []
}`

func poLines() []entity.POLine {
	return []entity.POLine{
		{POID: "227878", Line: 2, Sched: 1, Distrib: 1, Description: "Tape", Amount: 60},
		{POID: "227878", Line: 1, Sched: 1, Distrib: 1, Description: "Gloves", Amount: 70},
		{POID: "227878", Line: 1, Sched: 1, Distrib: 2, Description: "Gloves", Amount: 40},
	}
}
