// Package app wires configuration into the services shared by the
// bot binaries.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fiscalops/apbots/internal/actuator"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/export"
	"github.com/fiscalops/apbots/internal/ingest"
	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/llm/openai"
	"github.com/fiscalops/apbots/internal/ocr"
	"github.com/fiscalops/apbots/internal/pipeline"
	repo "github.com/fiscalops/apbots/internal/repository"
	"github.com/fiscalops/apbots/internal/runs"
	"github.com/fiscalops/apbots/internal/server"
)

// NewLogger returns the JSON logger the binaries share.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func OCROptions(cfg common.OCRConfig) ocr.Options {
	opts := ocr.DefaultOptions()
	opts.OCRLanguage = cfg.Language
	opts.OCRDPI = cfg.DPI
	opts.PreviewDPI = cfg.PreviewDPI
	opts.MaxOCRPages = cfg.MaxPages
	opts.MaxPreviewBytes = cfg.MaxPreviewBytes
	opts.MinTextLength = cfg.MinTextLength
	return opts
}

func NewIngestor(cfg common.OCRConfig, logger *slog.Logger) *ocr.Extractor {
	return ocr.NewExtractor(ocr.Config{
		Pdftotext:   cfg.Pdftotext,
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		TessdataDir: cfg.TessdataDir,
		Timeout:     cfg.Timeout,
	}, logger)
}

// NewModel returns nil when no API key is configured.
func NewModel(cfg common.LLMConfig, logger *slog.Logger) llm.Model {
	if cfg.APIKey == "" {
		logger.Warn("OpenAI API key not configured, model stages are disabled")
		return nil
	}
	logger.Info("OpenAI client initialized", "model", cfg.Model)
	return openai.NewClient(openai.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMin,
		MaxToolRounds:     cfg.MaxToolRounds,
		BreakerFailures:   uint32(max(cfg.BreakerFailures, 0)),
		BreakerOpenDelay:  cfg.BreakerOpenDelay,
	}, logger)
}

// Bots is the wired voucher bot: bookkeeping, PO registry, invoice
// pipeline, run service and export.
type Bots struct {
	Config    *common.Config
	DB        *repo.DB
	Model     llm.Model
	Ingestor  *ocr.Extractor
	Processor *pipeline.Processor
	Runs      *runs.Service
	Export    *export.Service
	Logger    *slog.Logger

	closeRegistry func()
}

// Build connects the databases and wires every service.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Bots, error) {
	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	registry, closeRegistry, err := server.ConnectRegistry(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	overlays, err := pipeline.LoadOverlays(cfg.Pipeline.OverlaysPath)
	if err != nil {
		closeRegistry()
		db.Close()
		return nil, common.WrapError(err, "load vendor overlays")
	}
	logger.Info("vendor overlays loaded", "path", cfg.Pipeline.OverlaysPath, "vendors", overlays.Len())

	model := NewModel(cfg.LLM, logger)
	ingestor := NewIngestor(cfg.OCR, logger)
	proc := pipeline.NewProcessor(pipeline.Deps{
		Ingestor:      ingestor,
		Model:         model,
		Registry:      registry,
		Overlays:      overlays,
		Actuator:      actuator.New(cfg.Pipeline.ActuatorURL, cfg.Pipeline.ActuatorTimeout, logger),
		MinConfidence: cfg.Pipeline.MinConfidence,
		ModelReview:   cfg.Pipeline.ModelReview,
		Logger:        logger,
	})

	ocrOpts := OCROptions(cfg.OCR)
	process := func(ctx context.Context, path string, testMode bool) (entity.DocumentReport, error) {
		return proc.ProcessFile(ctx, path, pipeline.ProcessOptions{TestMode: testMode, OCR: ocrOpts})
	}
	runRepo := repo.NewRunRepository(db, logger)
	logRepo := repo.NewProcessLogRepository(db, logger)
	svc := runs.NewService(runRepo, logRepo, process, logger,
		runs.WithMover(ingest.NewMover(cfg.Pipeline.DuplicatesDirName, false, logger)),
	)

	return &Bots{
		Config:        cfg,
		DB:            db,
		Model:         model,
		Ingestor:      ingestor,
		Processor:     proc,
		Runs:          svc,
		Export:        export.NewService(runRepo, logRepo, logger),
		Logger:        logger,
		closeRegistry: closeRegistry,
	}, nil
}

func (b *Bots) Close() {
	if b.closeRegistry != nil {
		b.closeRegistry()
	}
	b.DB.Close()
}

// WriteReport exports runID next to dir, or to out when set.
func (b *Bots) WriteReport(ctx context.Context, runID, dir, out string) (string, error) {
	data, err := b.Export.RunReport(ctx, runID)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = filepath.Join(filepath.Dir(filepath.Clean(dir)), runID+".xlsx")
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", common.WrapError(err, "write report")
	}
	return out, nil
}
