package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
)

const (
	previewStartQuality = 60
	previewMinQuality   = 45
	previewQualityStep  = 5
	previewMinSide      = 400
)

// BuildPreview encodes img as JPEG no larger than maxBytes. Each pass
// shrinks both sides to 80% (not below 400px unless already smaller) and
// lowers quality by 5 down to 45. It returns nil once neither can move.
func BuildPreview(img image.Image, maxBytes int) []byte {
	if img == nil || maxBytes <= 0 {
		return nil
	}
	quality := previewStartQuality
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cur := img
	for {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, cur, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes()
		}
		nw, nh := shrinkSide(w), shrinkSide(h)
		resized := nw != w || nh != h
		if !resized && quality <= previewMinQuality {
			return nil
		}
		if resized {
			cur = imaging.Resize(cur, nw, nh, imaging.Lanczos)
			w, h = nw, nh
		}
		if quality > previewMinQuality {
			quality = max(quality-previewQualityStep, previewMinQuality)
		}
	}
}

func shrinkSide(n int) int {
	floor := min(previewMinSide, n)
	return max(n*4/5, floor)
}

func (e *Extractor) imagePreview(path string, opts Options, warns []string) ([]byte, []string) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, append(warns, fmt.Sprintf("preview: %v", err))
	}
	p := BuildPreview(img, opts.MaxPreviewBytes)
	if p == nil {
		warns = append(warns, "preview omitted: over size cap")
	}
	return p, warns
}

// pdfPreview renders page one at PreviewDPI.
func (e *Extractor) pdfPreview(ctx context.Context, path string, opts Options, warns []string) ([]byte, []string) {
	tmpDir, err := os.MkdirTemp("", "apbots-pv-*")
	if err != nil {
		return nil, append(warns, fmt.Sprintf("preview: %v", err))
	}
	defer e.removeAll(tmpDir)

	prefix := filepath.Join(tmpDir, "preview")
	// pdftoppm -r 140 -f 1 -l 1 -singlefile -png <in.pdf> <tmp/preview>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(opts.PreviewDPI),
		"-f", "1", "-l", "1", "-singlefile",
		"-png", path, prefix)
	if err != nil {
		return nil, append(append(warns, nonEmpty(string(errb))...), fmt.Sprintf("preview: %v", err))
	}
	return e.imagePreview(prefix+".png", opts, warns)
}
