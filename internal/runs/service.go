// Package runs owns the bot run lifecycle: creation, queueing, the
// per-document loop and cooperative cancellation.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/async"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/ingest"
	"github.com/fiscalops/apbots/internal/metrics"
	"github.com/fiscalops/apbots/internal/repository"
)

const (
	MessageCancelledBeforeStart = "Cancelled before start"
	MessageCancelledByRequest   = "Cancelled by request"

	// identifier recorded when a document fails without one
	identifierError = "Error"
)

// ProcessFunc handles one document of a run.
type ProcessFunc func(ctx context.Context, path string, testMode bool) (entity.DocumentReport, error)

// NewRun describes a run to create.
type NewRun struct {
	BotName    string
	Identifier string // vendor or batch name used in the run id
	Directory  string
	TestMode   bool
	Context    map[string]any
}

type Service struct {
	runs    repository.RunRepository
	logs    repository.ProcessLogRepository
	process ProcessFunc
	logger  *slog.Logger

	mover    *ingest.Mover
	kinds    []constants.DocumentKind
	queue    async.Queue
	now      func() time.Time
	tokenFor func(runID string) CancellationToken
}

type Option func(*Service)

// WithMover files documents after each outcome; runs in test mode never move.
func WithMover(m *ingest.Mover) Option { return func(s *Service) { s.mover = m } }

// WithKinds restricts the documents a run picks up.
func WithKinds(kinds ...constants.DocumentKind) Option {
	return func(s *Service) { s.kinds = kinds }
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTokenFactory replaces the repository-backed cancellation token.
func WithTokenFactory(f func(runID string) CancellationToken) Option {
	return func(s *Service) { s.tokenFor = f }
}

func NewService(runs repository.RunRepository, logs repository.ProcessLogRepository, process ProcessFunc, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		runs:    runs,
		logs:    logs,
		process: process,
		logger:  logger,
		now:     time.Now,
	}
	s.tokenFor = func(runID string) CancellationToken {
		return RepositoryToken{Runs: s.runs, RunID: runID}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartWorker starts the run queue whose single worker executes queued
// runs one at a time.
func (s *Service) StartWorker(opts ...async.Option) *async.RunQueue {
	q := async.NewRunQueue(s.Handle, s.logger, opts...)
	s.queue = q
	return q
}

// CreateRun inserts a pending run. A run id collision is retried once
// with a random suffix.
func (s *Service) CreateRun(ctx context.Context, nr NewRun) (*entity.BotRun, error) {
	if strings.TrimSpace(nr.BotName) == "" {
		return nil, fmt.Errorf("%w: bot name is required", common.ErrInvalidInput)
	}
	if strings.TrimSpace(nr.Directory) == "" {
		return nil, fmt.Errorf("%w: directory is required", common.ErrInvalidInput)
	}
	rc := map[string]any{}
	for k, v := range nr.Context {
		rc[k] = v
	}
	rc["directory"] = nr.Directory
	rc["identifier"] = nr.Identifier
	raw, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("encode run context: %w", err)
	}

	run := entity.BotRun{
		RunID:    FormatRunID(nr.Identifier, nr.TestMode, s.now()),
		BotName:  nr.BotName,
		Status:   constants.RunStatusPending,
		TestMode: nr.TestMode,
		Context:  raw,
	}
	created, err := s.runs.Create(ctx, run)
	if errors.Is(err, common.ErrConflict) {
		run.RunID = withCollisionSuffix(run.RunID)
		created, err = s.runs.Create(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("run.created", "run_id", created.RunID, "bot", created.BotName, "test_mode", created.TestMode)
	return created, nil
}

// Enqueue marks the run queued and hands it to the worker. If the queue
// refuses the job the run goes back to pending.
func (s *Service) Enqueue(ctx context.Context, runID string) error {
	if s.queue == nil {
		return errors.New("run worker not started")
	}
	st := constants.RunStatusQueued
	if err := s.runs.Update(ctx, runID, repository.RunUpdate{Status: &st}); err != nil {
		return err
	}
	err := s.queue.Enqueue(ctx, async.Job{RunID: runID, SubmittedAt: s.now(), TraceID: common.RequestIDFromContext(ctx)})
	if err != nil {
		pending := constants.RunStatusPending
		if uerr := s.runs.Update(context.WithoutCancel(ctx), runID, repository.RunUpdate{Status: &pending}); uerr != nil {
			s.logger.Error("run.enqueue.revert_failed", "run_id", runID, "error", uerr)
		}
		return err
	}
	return nil
}

// RequestCancel raises the cancel flag of a non-terminal run.
func (s *Service) RequestCancel(ctx context.Context, runID, reason string) error {
	if err := s.runs.RequestCancel(ctx, runID); err != nil {
		return err
	}
	s.logger.Info("run.cancel_requested", "run_id", runID, "reason", reason)
	return nil
}

func (s *Service) Get(ctx context.Context, runID string) (*entity.BotRun, error) {
	return s.runs.Get(ctx, runID)
}

func (s *Service) List(ctx context.Context, f repository.RunFilter) ([]entity.BotRun, error) {
	return s.runs.List(ctx, f)
}

func (s *Service) ProcessLog(ctx context.Context, runID string) ([]entity.ProcessLog, error) {
	return s.logs.ListByRun(ctx, runID)
}

// Handle adapts Execute to the queue.
func (s *Service) Handle(ctx context.Context, job async.Job) error {
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	_, err := s.Execute(ctx, job.RunID)
	return err
}

// Execute runs the document loop of runID to a terminal status.
func (s *Service) Execute(ctx context.Context, runID string) (*entity.RunLog, error) {
	ctx = common.WithRunID(ctx, runID)
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != constants.RunStatusPending && run.Status != constants.RunStatusQueued {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, common.ErrConflict)
	}
	rc := map[string]any{}
	if len(run.Context) > 0 {
		if err := json.Unmarshal(run.Context, &rc); err != nil {
			return nil, s.fail(ctx, runID, fmt.Errorf("decode run context: %w", err))
		}
	}
	dir, _ := rc["directory"].(string)
	ident, _ := rc["identifier"].(string)
	runLog := &entity.RunLog{RunID: runID, Vendor: ident}
	log := s.logger.With("run_id", runID)

	if run.CancelRequested {
		runLog.Status = constants.RunStatusCancelled
		return runLog, s.finish(ctx, runID, constants.RunStatusCancelled, MessageCancelledBeforeStart, rc)
	}

	docs, err := ingest.ListDocuments(dir, s.kinds...)
	if err != nil {
		runLog.Status = constants.RunStatusFailed
		return runLog, s.fail(ctx, runID, err)
	}
	rc["total_documents"] = len(docs)
	if err := s.update(ctx, runID, constants.RunStatusRunning, "", rc); err != nil {
		runLog.Status = constants.RunStatusFailed
		return runLog, s.fail(ctx, runID, err)
	}
	log.Info("run.started", "directory", dir, "documents", len(docs), "test_mode", run.TestMode)

	token := s.tokenFor(runID)
	for _, path := range docs {
		cancelled, err := token.Cancelled(ctx)
		if err != nil {
			runLog.Status = constants.RunStatusFailed
			return runLog, s.fail(ctx, runID, err)
		}
		if cancelled {
			runLog.Status = constants.RunStatusCancelled
			mergeCounters(rc, runLog.RunCounters)
			return runLog, s.finish(ctx, runID, constants.RunStatusCancelled, MessageCancelledByRequest, rc)
		}
		if err := ctx.Err(); err != nil {
			runLog.Status = constants.RunStatusFailed
			return runLog, s.fail(ctx, runID, err)
		}

		report := s.processOne(ctx, path, run.TestMode)
		runLog.Record(report.Outcome)
		metrics.Documents.WithLabelValues(run.BotName, string(report.Outcome)).Inc()

		if _, err := s.logs.Append(ctx, entity.ProcessLog{
			RunID:      runID,
			Filename:   report.File,
			Identifier: report.Identifier,
			Amount:     report.Amount,
			Invoice:    report.InvoiceNumber,
			Status:     report.Outcome,
			Message:    report.Message,
		}); err != nil {
			runLog.Status = constants.RunStatusFailed
			return runLog, s.fail(ctx, runID, err)
		}
		log.Info("run.document.done",
			"file", report.File,
			"outcome", report.Outcome,
			"identifier", report.Identifier,
			"processed", runLog.Processed,
		)

		if s.mover != nil && !run.TestMode {
			if _, err := s.mover.Move(path, report.Outcome); err != nil {
				log.Warn("run.document.move_failed", "file", report.File, "error", err)
			}
		}

		mergeCounters(rc, runLog.RunCounters)
		if err := s.update(ctx, runID, "", "", rc); err != nil {
			runLog.Status = constants.RunStatusFailed
			return runLog, s.fail(ctx, runID, err)
		}
	}

	runLog.Status = constants.RunStatusCompleted
	mergeCounters(rc, runLog.RunCounters)
	return runLog, s.finish(ctx, runID, constants.RunStatusCompleted, "", rc)
}

// processOne never panics and never returns an error: both become a
// failure report.
func (s *Service) processOne(ctx context.Context, path string, testMode bool) (report entity.DocumentReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("run.document.panic", "file", path, "panic", r)
			report = failureReport(path, report, fmt.Errorf("panic: %v", r))
		}
	}()
	rep, err := s.process(ctx, path, testMode)
	if err != nil {
		return failureReport(path, rep, err)
	}
	if rep.File == "" {
		rep.File = filepath.Base(path)
	}
	rep.Message = TruncateMessage(rep.Message)
	return rep
}

func failureReport(path string, rep entity.DocumentReport, err error) entity.DocumentReport {
	rep.Outcome = constants.OutcomeFailure
	if rep.File == "" {
		rep.File = filepath.Base(path)
	}
	if rep.Identifier == "" {
		rep.Identifier = identifierError
	}
	rep.Message = TruncateMessage(err.Error())
	return rep
}

// TruncateMessage caps s at constants.MaxLogMessageLen runes, ending
// truncated text with "...".
func TruncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= constants.MaxLogMessageLen {
		return s
	}
	return string(r[:constants.MaxLogMessageLen-3]) + "..."
}

func mergeCounters(rc map[string]any, c entity.RunCounters) {
	for k, v := range c.AsContext() {
		rc[k] = v
	}
}

func (s *Service) update(ctx context.Context, runID string, status constants.RunStatus, message string, rc map[string]any) error {
	u := repository.RunUpdate{}
	if status != "" {
		u.Status = &status
	}
	if message != "" {
		u.Message = &message
	}
	if rc != nil {
		raw, err := json.Marshal(rc)
		if err != nil {
			return fmt.Errorf("encode run context: %w", err)
		}
		u.Context = raw
	}
	return s.runs.Update(ctx, runID, u)
}

func (s *Service) finish(ctx context.Context, runID string, status constants.RunStatus, message string, rc map[string]any) error {
	if err := s.update(context.WithoutCancel(ctx), runID, status, message, rc); err != nil {
		return err
	}
	metrics.Runs.WithLabelValues(string(status)).Inc()
	s.logger.Info("run.finished", "run_id", runID, "status", status, "message", message)
	return nil
}

// fail marks the run failed and returns cause.
func (s *Service) fail(ctx context.Context, runID string, cause error) error {
	s.logger.Error("run.failed", "run_id", runID, "error", cause)
	msg := TruncateMessage(cause.Error())
	st := constants.RunStatusFailed
	if err := s.runs.Update(context.WithoutCancel(ctx), runID, repository.RunUpdate{Status: &st, Message: &msg}); err != nil {
		s.logger.Error("run.fail.persist_error", "run_id", runID, "error", err)
	}
	metrics.Runs.WithLabelValues(string(st)).Inc()
	return cause
}
