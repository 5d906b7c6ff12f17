package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiscalops/apbots/constants"
)

// Mover files documents away once their outcome is known. Failures are
// left in place so the next run retries them.
type Mover struct {
	ProcessedDir  string
	DuplicatesDir string
	Disabled      bool
	logger        *slog.Logger
}

// NewMover uses the default subdirectory names when duplicatesDir is
// empty. A disabled mover never touches the filesystem.
func NewMover(duplicatesDir string, disabled bool, logger *slog.Logger) *Mover {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(duplicatesDir) == "" {
		duplicatesDir = constants.DuplicatesDir
	}
	return &Mover{
		ProcessedDir:  constants.ProcessedDir,
		DuplicatesDir: duplicatesDir,
		Disabled:      disabled,
		logger:        logger,
	}
}

// Move relocates path according to outcome and returns the new path,
// or path itself when nothing moved.
func (m *Mover) Move(path string, outcome constants.Outcome) (string, error) {
	var sub string
	switch outcome {
	case constants.OutcomeSuccess:
		sub = m.ProcessedDir
	case constants.OutcomeDuplicate:
		sub = m.DuplicatesDir
	default:
		return path, nil
	}
	if m.Disabled {
		m.logger.Debug("ingest.move.skipped", "file", path, "outcome", outcome)
		return path, nil
	}

	destDir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return path, fmt.Errorf("create %s: %w", destDir, err)
	}
	dest, err := freeName(destDir, filepath.Base(path))
	if err != nil {
		return path, err
	}
	if err := os.Rename(path, dest); err != nil {
		return path, fmt.Errorf("move %s: %w", path, err)
	}
	m.logger.Info("ingest.move.ok", "file", path, "dest", dest, "outcome", outcome)
	return dest, nil
}

// freeName returns dir/name, or dir/name_N.ext for the first free N.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; i < 10000; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}
