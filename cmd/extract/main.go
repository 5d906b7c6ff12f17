package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/app"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/documents"
)

func main() {
	kindFlag := flag.String("kind", "invoice", "document kind: invoice, direct_deposit, payline, scholarship, journal")
	flag.Parse()

	logger := app.NewLogger()
	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extract -kind <kind> <file>")
		os.Exit(2)
	}
	kind, ok := constants.ParseDocumentType(*kindFlag)
	if !ok {
		logger.Error("invalid kind", "kind", *kindFlag)
		os.Exit(2)
	}

	if err := common.LoadEnvFile(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	model := app.NewModel(cfg.LLM, logger)
	if model == nil {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	x := documents.NewExtractor(app.NewIngestor(cfg.OCR, logger), model, app.OCROptions(cfg.OCR), logger)
	out, err := x.Extract(ctx, kind, flag.Arg(0))
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			logger.Error("encode result", "error", encErr)
			os.Exit(1)
		}
	}
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			fmt.Fprintln(os.Stderr, "needs review:", err)
			os.Exit(3)
		}
		logger.Error("extraction failed", "file", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}
