package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/fiscalops/apbots/internal/app"
	"github.com/fiscalops/apbots/internal/common"
)

func main() {
	preview := flag.Bool("preview", false, "include the JPEG preview as a data URL")
	flag.Parse()

	logger := app.NewLogger()
	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-preview] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	_ = common.LoadEnvFile()
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opts := app.OCROptions(cfg.OCR)
	opts.IncludePreviewOnOCR = *preview
	res := app.NewIngestor(cfg.OCR, logger).Ingest(ctx, path, opts)

	out := map[string]any{
		"file":        path,
		"success":     res.Success,
		"description": res.Description,
		"kind":        res.Kind,
		"method":      res.Method,
		"page_count":  res.PageCount,
		"pages":       res.Pages,
		"confidence":  res.Confidence,
		"duration_ms": res.Duration.Milliseconds(),
		"warnings":    res.Warnings,
		"text":        res.Text,
	}
	if *preview {
		out["preview"] = res.PreviewDataURL()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
	if !res.Success {
		os.Exit(1)
	}
}
