package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type imageResult struct {
	Text       string
	Confidence float32
	Warnings   []string
}

func (e *Extractor) extractImage(ctx context.Context, path string, opts Options) (imageResult, error) {
	txt, warn, err := e.tesseractOCR(ctx, path, opts.OCRLanguage)
	if err != nil {
		return imageResult{Warnings: warn}, err
	}
	txt = Normalize(txt)

	var ocrConf float32
	if e.cfg.EnableTSVConfidence {
		c, err := e.tesseractTSVConfidence(ctx, path, opts.OCRLanguage)
		if err != nil {
			warn = append(warn, err.Error())
		}
		ocrConf = c
	}
	heurConf := heuristicConfidence(txt)

	conf := heurConf
	if ocrConf > 0 {
		conf = 0.7*ocrConf + 0.3*heurConf
	}
	return imageResult{Text: txt, Confidence: min(conf, 1.0), Warnings: warn}, nil
}

func (e *Extractor) tesseractArgs(path, lang string, extra ...string) []string {
	args := []string{path, "stdout", "-l", lang,
		"--psm", strconv.Itoa(e.cfg.PSM),
		"--oem", strconv.Itoa(e.cfg.OEM),
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// tesseract <file> stdout -l <lang> --psm N --oem N
func (e *Extractor) tesseractOCR(ctx context.Context, path, lang string) (string, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path, lang)...)
	if err != nil {
		return "", nonEmpty(string(errb)), fmt.Errorf("tesseract: %w", err)
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil, nil
}

// tesseractTSVConfidence returns the mean word confidence in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path, lang string) (float32, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path, lang, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w", err)
	}
	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		// level page block par line word left top width height conf text
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float32(sum / n / 100.0), nil
}

func nonEmpty(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return []string{s}
}
