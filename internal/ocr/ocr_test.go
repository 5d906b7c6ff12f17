package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	handler func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	return f.handler(name, args)
}

func (f *fakeRunner) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 not really"), 0o644))
	return p
}

// popplerStub emulates pdftotext/pdftoppm/tesseract.
func popplerStub(t *testing.T, pdfText string, ocrText string, tesseractOK bool) *fakeRunner {
	return &fakeRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "pdftotext":
			return []byte(pdfText), nil, nil
		case "pdftoppm":
			prefix := args[len(args)-1]
			if contains(args, "-singlefile") {
				writePNG(t, prefix+".png", 200, 260)
				return nil, nil, nil
			}
			writePNG(t, prefix+"-1.png", 50, 50)
			writePNG(t, prefix+"-2.png", 50, 50)
			return nil, nil, nil
		case "tesseract":
			if !tesseractOK {
				return nil, []byte("not installed"), errors.New("exit status 127")
			}
			if contains(args, "--version") {
				return []byte("tesseract 5.3.0"), nil, nil
			}
			return []byte(ocrText), nil, nil
		}
		return nil, nil, errors.New("unexpected command " + name)
	}}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestIngest_NativeTextSkipsOCR(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "invoice.pdf")
	runner := popplerStub(t, "Invoice #INV-100, Total $500.00\n\f", "", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	res := ex.Ingest(context.Background(), path, DefaultOptions())

	require.True(t, res.Success, res.Description)
	assert.Contains(t, res.Text, "INV-100")
	assert.Equal(t, "pdftotext", res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.NotEmpty(t, res.Preview)
	assert.LessOrEqual(t, len(res.Preview), DefaultOptions().MaxPreviewBytes)
	assert.Zero(t, runner.count("tesseract"), "OCR must not run when a text layer exists")
	assert.True(t, strings.HasPrefix(res.PreviewDataURL(), "data:image/jpeg;base64,"))
}

func TestIngest_ZeroOptionsStillPreview(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "invoice.pdf")
	runner := popplerStub(t, "Invoice #INV-101, Total $75.00\n\f", "", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	res := ex.Ingest(context.Background(), path, Options{})

	require.True(t, res.Success, res.Description)
	assert.NotEmpty(t, res.Preview)
	assert.LessOrEqual(t, len(res.Preview), DefaultOptions().MaxPreviewBytes)
}

func TestIngest_ScannedPDFFallsBackToOCR(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "scan.pdf")
	runner := popplerStub(t, "  \n", "PO 0000012345 Amount 1,200.00", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	res := ex.Ingest(context.Background(), path, DefaultOptions())

	require.True(t, res.Success, res.Description)
	assert.Equal(t, "tesseract", res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Text, "0000012345")
	assert.Contains(t, res.Description, "OCR successful")
	assert.Nil(t, res.Preview, "preview is omitted on OCR unless requested")
	assert.Greater(t, res.Confidence, float32(0))
}

func TestIngest_OCRPreviewOnRequest(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "scan.pdf")
	runner := popplerStub(t, "", "Remit to ACME 99.00", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	opts := DefaultOptions()
	opts.IncludePreviewOnOCR = true
	res := ex.Ingest(context.Background(), path, opts)

	require.True(t, res.Success)
	assert.NotEmpty(t, res.Preview)
}

func TestIngest_NoTextLayerOCRUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "scan.pdf")
	runner := popplerStub(t, "", "", false)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	res := ex.Ingest(context.Background(), path, DefaultOptions())

	assert.False(t, res.Success)
	assert.Equal(t, "No text layer; OCR disabled/unavailable", res.Description)
	assert.Empty(t, res.Text)
}

func TestIngest_ShortTextCountsAsNoLayer(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "stub.pdf")
	runner := popplerStub(t, "Page 1", "", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	opts := DefaultOptions()
	opts.OCRIfEmpty = false
	res := ex.Ingest(context.Background(), path, opts)

	assert.False(t, res.Success)
	assert.Zero(t, runner.count("tesseract"))
}

func TestIngest_Image(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.PNG")
	writePNG(t, path, 120, 80)
	runner := popplerStub(t, "", "Invoice 2025-01-31 Total $42.00", true)
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(runner))

	res := ex.Ingest(context.Background(), path, DefaultOptions())

	require.True(t, res.Success, res.Description)
	assert.Equal(t, 1, res.PageCount)
	assert.Contains(t, res.Text, "$42.00")
	assert.Zero(t, runner.count("pdftotext"))
}

func TestIngest_MissingAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(Config{}, quietLogger(), WithRunner(popplerStub(t, "", "", true)))

	res := ex.Ingest(context.Background(), filepath.Join(dir, "nope.pdf"), DefaultOptions())
	assert.False(t, res.Success)
	assert.Contains(t, res.Description, "File not found")

	docx := filepath.Join(dir, "memo.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o644))
	res = ex.Ingest(context.Background(), docx, DefaultOptions())
	assert.False(t, res.Success)
	assert.Contains(t, res.Description, "Unsupported file type")
}

func TestBuildPreview_RespectsCap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := image.NewRGBA(image.Rect(0, 0, 1200, 1600))
	for i := range noise.Pix {
		noise.Pix[i] = byte(rng.Intn(256))
	}

	for _, limit := range []int{100, 20_000, 200_000, 750_000} {
		p := BuildPreview(noise, limit)
		if p != nil {
			assert.LessOrEqual(t, len(p), limit)
		}
	}
	assert.Nil(t, BuildPreview(noise, 100), "a 100 byte cap cannot be met")
}

func TestBuildPreview_FitsAndDecodes(t *testing.T) {
	flat := imaging.New(800, 600, color.White)
	p := BuildPreview(flat, 50_000)
	require.NotNil(t, p)

	img, err := imaging.Decode(bytes.NewReader(p))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx(), "no downscale needed for a flat image")
}

func TestShrinkSide(t *testing.T) {
	assert.Equal(t, 800, shrinkSide(1000))
	assert.Equal(t, 400, shrinkSide(450))
	assert.Equal(t, 300, shrinkSide(300))
}

func TestNormalize(t *testing.T) {
	in := "Total\t\t 01.50  \r\n\r\n\r\n\r\nPO  0000012345   "
	assert.Equal(t, "Total 01.50\n\nPO 0000012345", Normalize(in))
}
