package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// pdfToText prefers poppler's pdftotext and falls back to the in-process
// reader when the binary is not installed.
func (e *Extractor) pdfToText(ctx context.Context, path string) (string, string, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err == nil {
		return string(out), "pdftotext", nil, nil
	}
	warns := nonEmpty(string(errb))
	if !errors.Is(err, exec.ErrNotFound) {
		return "", "pdftotext", warns, fmt.Errorf("pdftotext: %w", err)
	}
	txt, nerr := pdfNativeText(path)
	if nerr != nil {
		return "", "pdf-native", append(warns, "pdftotext not installed"), nerr
	}
	return txt, "pdf-native", append(warns, "pdftotext not installed"), nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string, opts Options) (string, int, []string, error) {
	tmpDir, err := os.MkdirTemp("", "apbots-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer e.removeAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -f 1 -l N -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(opts.OCRDPI),
		"-f", "1", "-l", strconv.Itoa(opts.MaxOCRPages),
		"-png", path, prefix)
	if err != nil {
		return "", 0, nonEmpty(string(errb)), fmt.Errorf("pdftoppm: %w", err)
	}

	// prefix-1.png, prefix-2.png, ... (zero padded for long documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) > opts.MaxOCRPages {
		matches = matches[:opts.MaxOCRPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, errors.New("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	pages := 0
	for _, img := range matches {
		if ctx.Err() != nil {
			return "", pages, warns, ctx.Err()
		}
		txt, w, err := e.tesseractOCR(ctx, img, opts.OCRLanguage)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		pages++
	}
	return b.String(), pages, warns, nil
}

func (e *Extractor) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("ocr.tmp.cleanup_failed", "dir", dir, "error", err)
	}
}
