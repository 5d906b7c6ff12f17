package constants

import "strings"

// DocumentKind is the raster family of an input file.
type DocumentKind string

const (
	KindPDF         DocumentKind = "pdf"
	KindImage       DocumentKind = "image"
	KindSpreadsheet DocumentKind = "spreadsheet"
	KindUnknown     DocumentKind = ""
)

// AllowedExtensions maps accepted file extensions to their kind.
var AllowedExtensions = map[string]DocumentKind{
	"pdf":  KindPDF,
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"tif":  KindImage,
	"tiff": KindImage,
	"bmp":  KindImage,
	"gif":  KindImage,
	"webp": KindImage,
	"xlsx": KindSpreadsheet,
	"xlsm": KindSpreadsheet,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindOf returns the document kind for an extension (with or without dot).
func KindOf(ext string) DocumentKind {
	return AllowedExtensions[NormalizeExt(ext)]
}

// Default subdirectory names under a vendor inbox.
const (
	ProcessedDir    = "Processed"
	DuplicatesDir   = "Duplicates"
	NotProcessedDir = "NotProcessed"
)
