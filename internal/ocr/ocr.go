package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fiscalops/apbots/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TessdataDir         string
	EnableTSVConfidence bool

	PSM int // 6 = assume a uniform block of text
	OEM int // 3 = default engine

	Timeout time.Duration // per Ingest call; 0 = none
}

// Options are the per-call ingestion knobs.
type Options struct {
	OCRIfEmpty          bool
	OCRLanguage         string
	OCRDPI              int
	PreviewDPI          int
	MaxOCRPages         int
	IncludePreviewOnOCR bool
	MaxPreviewBytes     int
	MinTextLength       int
}

// DefaultOptions mirrors the values used by the invoice bots.
func DefaultOptions() Options {
	return Options{
		OCRIfEmpty:          true,
		OCRLanguage:         "eng",
		OCRDPI:              300,
		PreviewDPI:          140,
		MaxOCRPages:         5,
		IncludePreviewOnOCR: false,
		MaxPreviewBytes:     750_000,
		MinTextLength:       16,
	}
}

// MethodTesseract marks text that came from OCR.
const MethodTesseract = "tesseract"

// Result is the outcome of ingesting one document. Failures are reported
// through Success/Description, never as a Go error.
type Result struct {
	Text        string
	Preview     []byte // JPEG, nil when omitted
	Success     bool
	Description string

	Kind       constants.DocumentKind
	PageCount  int
	Method     string // "pdftotext" | "pdf-native" | "tesseract" | "none"
	Pages      int    // pages that produced text
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// PreviewDataURL renders the preview as a data URL, or "" when absent.
func (r Result) PreviewDataURL() string {
	if len(r.Preview) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(r.Preview)
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	probeOnce sync.Once
	ocrReady  bool
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithRunner swaps the command runner (tests).
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	if cfg.OEM <= 0 {
		cfg.OEM = 3
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest extracts text from a PDF or image, falling back to OCR when the
// document has no usable text layer, and renders a size-capped preview.
func (e *Extractor) Ingest(ctx context.Context, path string, opts Options) Result {
	start := time.Now()
	opts = withDefaults(opts)
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	res := e.ingest(ctx, path, opts)
	res.Duration = time.Since(start)
	res.Language = opts.OCRLanguage

	level := slog.LevelInfo
	if !res.Success {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "ocr.ingest.done",
		"path", path,
		"kind", res.Kind,
		"method", res.Method,
		"success", res.Success,
		"description", res.Description,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"preview_bytes", len(res.Preview),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res
}

func (e *Extractor) ingest(ctx context.Context, path string, opts Options) Result {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return failed(fmt.Sprintf("File not found: %s", abs))
		}
		return failed(fmt.Sprintf("Unreadable file: %v", err))
	}
	if info.IsDir() {
		return failed(fmt.Sprintf("Not a file: %s", abs))
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	e.logger.Debug("ocr.ingest.start", "path", abs, "ext", ext)
	switch constants.KindOf(ext) {
	case constants.KindPDF:
		return e.ingestPDF(ctx, abs, opts)
	case constants.KindImage:
		return e.ingestImage(ctx, abs, opts)
	default:
		return failed(fmt.Sprintf("Unsupported file type: %q", ext))
	}
}

func (e *Extractor) ingestPDF(ctx context.Context, path string, opts Options) Result {
	res := Result{Kind: constants.KindPDF, Method: "none"}

	count, err := pdfPageCount(path)
	if err != nil {
		res.Warnings = append(res.Warnings, "page count: "+err.Error())
	}
	res.PageCount = count

	text, method, warns, textErr := e.pdfToText(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	text = Normalize(text)
	if textErr == nil && hasTextLayer(text, opts.MinTextLength) {
		res.Text = text
		res.Success = true
		res.Method = method
		res.Pages = max(count, pageBreaks(text))
		res.Description = "PDF text layer"
		res.Confidence = 1.0
		res.Preview, res.Warnings = e.pdfPreview(ctx, path, opts, res.Warnings)
		return res
	}
	if textErr != nil && count == 0 {
		// neither pdftotext nor the in-process reader could open it
		res.Description = fmt.Sprintf("Empty or invalid PDF: %v", textErr)
		return res
	}

	if !opts.OCRIfEmpty || !e.ocrAvailable(ctx) {
		res.Description = "No text layer; OCR disabled/unavailable"
		res.Preview, res.Warnings = e.pdfPreview(ctx, path, opts, res.Warnings)
		return res
	}

	ocrText, pages, warns, err := e.pdfToOCR(ctx, path, opts)
	res.Warnings = append(res.Warnings, warns...)
	if opts.IncludePreviewOnOCR {
		res.Preview, res.Warnings = e.pdfPreview(ctx, path, opts, res.Warnings)
	}
	if err != nil {
		res.Description = fmt.Sprintf("OCR failed: %v", err)
		return res
	}
	ocrText = Normalize(ocrText)
	res.Method = MethodTesseract
	res.Pages = pages
	if ocrText == "" {
		res.Description = "No text layer and OCR found no text"
		return res
	}
	res.Text = ocrText
	res.Success = true
	res.Confidence = heuristicConfidence(ocrText)
	res.Description = fmt.Sprintf("OCR successful (dpi=%d, pages=%d)", opts.OCRDPI, pages)
	return res
}

func (e *Extractor) ingestImage(ctx context.Context, path string, opts Options) Result {
	res := Result{Kind: constants.KindImage, PageCount: 1, Method: "none"}
	ocrOK := opts.OCRIfEmpty && e.ocrAvailable(ctx)
	if opts.IncludePreviewOnOCR || !ocrOK {
		res.Preview, res.Warnings = e.imagePreview(path, opts, res.Warnings)
	}
	if !ocrOK {
		res.Description = "Image has no text layer; OCR disabled/unavailable"
		return res
	}

	ir, err := e.extractImage(ctx, path, opts)
	res.Warnings = append(res.Warnings, ir.Warnings...)
	if err != nil {
		res.Description = fmt.Sprintf("OCR failed: %v", err)
		return res
	}
	res.Method = MethodTesseract
	if ir.Text == "" {
		res.Description = "OCR found no text"
		return res
	}
	res.Text = ir.Text
	res.Pages = 1
	res.Confidence = ir.Confidence
	res.Success = true
	res.Description = fmt.Sprintf("OCR successful (image, lang=%s)", opts.OCRLanguage)
	return res
}

// ocrAvailable probes tesseract once per Extractor.
func (e *Extractor) ocrAvailable(ctx context.Context) bool {
	e.probeOnce.Do(func() {
		_, _, err := e.runner.Run(ctx, e.cfg.Tesseract, "--version")
		e.ocrReady = err == nil
		if err != nil {
			e.logger.Warn("ocr.unavailable", "tesseract", e.cfg.Tesseract, "error", err)
		}
	})
	return e.ocrReady
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.OCRLanguage == "" {
		o.OCRLanguage = d.OCRLanguage
	}
	if o.OCRDPI <= 0 {
		o.OCRDPI = d.OCRDPI
	}
	if o.PreviewDPI <= 0 {
		o.PreviewDPI = d.PreviewDPI
	}
	if o.MaxOCRPages <= 0 {
		o.MaxOCRPages = d.MaxOCRPages
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = d.MinTextLength
	}
	if o.MaxPreviewBytes <= 0 {
		o.MaxPreviewBytes = d.MaxPreviewBytes
	}
	return o
}

func failed(desc string) Result {
	return Result{Success: false, Description: desc, Method: "none"}
}

func hasTextLayer(text string, minLen int) bool {
	return utf8.RuneCountInString(strings.Join(strings.Fields(text), " ")) >= minLen
}

// pageBreaks counts pages in normalized pdftotext output, where \f
// separates pages and the trailing one has been trimmed.
func pageBreaks(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\f") + 1
}
