package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fiscalops/apbots/constants"
)

// ListDocuments returns the documents directly inside dir, sorted by
// name. Subdirectories such as Processed and Duplicates are not
// descended into; hidden files and unknown extensions are skipped.
func ListDocuments(dir string, kinds ...constants.DocumentKind) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("directory is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || IsHidden(e.Name()) {
			continue
		}
		if !AllowedExt(filepath.Ext(e.Name()), kinds...) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
