package ocr

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfPageCount reads the page tree. The reader panics on some malformed
// files, so those are reported as errors.
func pdfPageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return r.NumPage(), nil
}

func pdfNativeText(path string) (txt string, err error) {
	defer func() {
		if r := recover(); r != nil {
			txt, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\f")
		}
		b.WriteString(s)
	}
	if b.Len() == 0 {
		// some producers only expose a document-wide stream
		rd, err := r.GetPlainText()
		if err != nil {
			return "", err
		}
		all, err := io.ReadAll(rd)
		if err != nil {
			return "", err
		}
		return string(all), nil
	}
	return b.String(), nil
}
