package ingest

import (
	"path/filepath"
	"strings"

	"github.com/fiscalops/apbots/constants"
)

// AllowedExt reports whether ext belongs to one of kinds, or to any
// known kind when kinds is empty.
func AllowedExt(ext string, kinds ...constants.DocumentKind) bool {
	kind := constants.KindOf(ext)
	if kind == constants.KindUnknown {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
