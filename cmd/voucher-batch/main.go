package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiscalops/apbots/internal/app"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/runs"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoices to process (required)")
		vendor  = flag.String("vendor", "", "vendor or batch name used in the run id")
		bot     = flag.String("bot", "voucher", "bot name recorded on the run")
		live    = flag.Bool("live", false, "submit plans to the actuator and move files (overrides TEST_MODE)")
		export  = flag.Bool("export", false, "write an XLSX report of the run")
		out     = flag.String("out", "", "report path (default: <parent of dir>/<run id>.xlsx)")
		envFile = flag.String("env", ".env", "optional .env file to preload")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := app.NewLogger()
	if err := common.LoadEnvFile(*envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	testMode := cfg.Pipeline.TestMode && !*live

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bots, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer bots.Close()

	run, err := bots.Runs.CreateRun(ctx, runs.NewRun{
		BotName:    *bot,
		Identifier: *vendor,
		Directory:  *dir,
		TestMode:   testMode,
	})
	if err != nil {
		logger.Error("failed to create run", "error", err)
		os.Exit(1)
	}

	// Ctrl-C raises the cancel flag so the loop stops at the next document.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := bots.Runs.RequestCancel(context.WithoutCancel(ctx), run.RunID, "interrupted"); err != nil {
				logger.Debug("cancel request ignored", "error", err)
			}
		case <-done:
		}
	}()

	summary, err := bots.Runs.Execute(context.WithoutCancel(ctx), run.RunID)
	if err != nil {
		logger.Error("run failed", "run_id", run.RunID, "error", err)
	}
	if summary != nil {
		fmt.Printf("Run %s: %s\n", summary.RunID, summary.Status)
		fmt.Printf("  processed:  %d\n", summary.Processed)
		fmt.Printf("  successes:  %d\n", summary.Successes)
		fmt.Printf("  duplicates: %d\n", summary.Duplicates)
		fmt.Printf("  failures:   %d\n", summary.Failures)
	}

	if *export {
		path, xerr := bots.WriteReport(context.WithoutCancel(ctx), run.RunID, *dir, *out)
		if xerr != nil {
			logger.Error("failed to export report", "error", xerr)
			os.Exit(1)
		}
		fmt.Printf("Report: %s\n", path)
	}
	if err != nil {
		os.Exit(1)
	}
}
