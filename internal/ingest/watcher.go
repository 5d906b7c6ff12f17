package ingest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fiscalops/apbots/constants"
)

type WatchConfig struct {
	Inboxes     []string // vendor inbox directories; not recursive
	Kinds       []constants.DocumentKind
	InitialScan bool          // emit inboxes that already hold documents
	Debounce    time.Duration // quiet period before an inbox is reported
}

// Arrival reports that an inbox received documents and has settled.
type Arrival struct {
	Inbox string
	Files []string
}

// StartWatcher watches the inboxes and emits one Arrival per inbox
// after Debounce passes with no further events for it.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan Arrival, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Inboxes) == 0 {
		return nil, nil, errors.New("no inboxes provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	inboxes := map[string]bool{}
	for _, dir := range cfg.Inboxes {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
		if err := w.Add(abs); err != nil {
			logger.Error("ingest.watch.add_failed", "inbox", abs, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
		inboxes[abs] = true
	}

	out := make(chan Arrival, len(inboxes))
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_error", "error", err)
			}
		}()

		pending := map[string]map[string]struct{}{}
		lastEvent := map[string]time.Time{}
		tick := time.NewTicker(cfg.Debounce / 4)
		defer tick.Stop()

		if cfg.InitialScan {
			for dir := range inboxes {
				files, err := ListDocuments(dir, cfg.Kinds...)
				if err != nil || len(files) == 0 {
					continue
				}
				select {
				case out <- Arrival{Inbox: dir, Files: files}:
				case <-ctx.Done():
					return
				}
			}
		}

		flush := func(now time.Time) {
			for dir, last := range lastEvent {
				if now.Sub(last) < cfg.Debounce {
					continue
				}
				files := make([]string, 0, len(pending[dir]))
				for f := range pending[dir] {
					files = append(files, f)
				}
				sort.Strings(files)
				delete(pending, dir)
				delete(lastEvent, dir)
				select {
				case out <- Arrival{Inbox: dir, Files: files}:
					logger.Info("ingest.watch.arrival", "inbox", dir, "files", len(files))
				default:
					logger.Warn("ingest.watch.dropped", "inbox", dir, "files", len(files))
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				dir := filepath.Dir(e.Name)
				if !inboxes[dir] || IsHidden(e.Name) || !AllowedExt(filepath.Ext(e.Name), cfg.Kinds...) {
					continue
				}
				if pending[dir] == nil {
					pending[dir] = map[string]struct{}{}
				}
				pending[dir][e.Name] = struct{}{}
				lastEvent[dir] = time.Now()
			case now := <-tick.C:
				flush(now)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return out, errCh, nil
}
