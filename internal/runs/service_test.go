package runs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/async"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/ingest"
	"github.com/fiscalops/apbots/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	runs repository.RunRepository
	logs repository.ProcessLogRepository
	dir  string
}

func newFixture(t *testing.T, files ...string) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "bots.db"),
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("%PDF"), 0o600))
	}
	return fixture{
		runs: repository.NewRunRepository(db, quietLogger()),
		logs: repository.NewProcessLogRepository(db, quietLogger()),
		dir:  dir,
	}
}

// scripted returns a ProcessFunc answering by file name.
func scripted(reports map[string]entity.DocumentReport, errs map[string]error) ProcessFunc {
	return func(_ context.Context, path string, _ bool) (entity.DocumentReport, error) {
		name := filepath.Base(path)
		if err := errs[name]; err != nil {
			return entity.DocumentReport{File: name}, err
		}
		if name == "panic.pdf" {
			panic("form vanished")
		}
		rep := reports[name]
		rep.File = name
		return rep, nil
	}
}

func fixedClock() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }

func TestFormatRunID(t *testing.T) {
	at := time.Date(2024, 3, 5, 6, 7, 9, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "Grainger-20240305-140709", FormatRunID("grainger", false, at))
	assert.Equal(t, "test-GraingerInc-20240305-140709", FormatRunID("Grainger, Inc.", true, at))
	assert.Equal(t, "Run-20240305-140709", FormatRunID("", false, at))

	s := withCollisionSuffix("Grainger-20240305-140709")
	assert.Regexp(t, `^Grainger-20240305-140709-[0-9a-f]{4}$`, s)
}

func TestTruncateMessage(t *testing.T) {
	short := "fine"
	assert.Equal(t, short, TruncateMessage(short))
	long := strings.Repeat("x", 300)
	got := TruncateMessage(long)
	assert.Len(t, got, 240)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("x", 237), strings.TrimSuffix(got, "..."))
}

func TestCreateRun_CollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.runs, f.logs, scripted(nil, nil), quietLogger(), WithClock(fixedClock))
	ctx := context.Background()

	first, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "grainger", Directory: f.dir, TestMode: true})
	require.NoError(t, err)
	assert.Equal(t, "test-Grainger-20240305-140709", first.RunID)
	assert.Equal(t, constants.RunStatusPending, first.Status)

	second, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "grainger", Directory: f.dir, TestMode: true})
	require.NoError(t, err)
	assert.Regexp(t, `^test-Grainger-20240305-140709-[0-9a-f]{4}$`, second.RunID)

	_, err = svc.CreateRun(ctx, NewRun{BotName: "voucher"})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestExecute_CountsOutcomesAndMovesFiles(t *testing.T) {
	f := newFixture(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "panic.pdf")
	reports := map[string]entity.DocumentReport{
		"a.pdf": {Outcome: constants.OutcomeSuccess, Identifier: "00012345", InvoiceNumber: "INV-1", Amount: 10.5},
		"b.pdf": {Outcome: constants.OutcomeDuplicate, Identifier: constants.IdentifierDuplicate, InvoiceNumber: "INV-2"},
		"c.pdf": {Outcome: constants.OutcomeFailure, Identifier: constants.IdentifierReviewBlocked, Message: "purchase order not found"},
	}
	errs := map[string]error{"d.pdf": errors.New(strings.Repeat("e", 500))}
	svc := NewService(f.runs, f.logs, scripted(reports, errs), quietLogger(),
		WithMover(ingest.NewMover("", false, quietLogger())))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "grainger", Directory: f.dir})
	require.NoError(t, err)
	log, err := svc.Execute(ctx, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, constants.RunStatusCompleted, log.Status)
	assert.Equal(t, entity.RunCounters{Processed: 5, Successes: 1, Duplicates: 1, Failures: 3}, log.RunCounters)

	rows, err := svc.ProcessLog(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "a.pdf", rows[0].Filename)
	assert.Equal(t, "00012345", rows[0].Identifier)
	assert.Equal(t, constants.OutcomeDuplicate, rows[1].Status)
	assert.Equal(t, "purchase order not found", rows[2].Message)
	assert.Equal(t, "Error", rows[3].Identifier)
	assert.Len(t, rows[3].Message, 240)
	assert.Contains(t, rows[4].Message, "panic: form vanished")

	assert.FileExists(t, filepath.Join(f.dir, "Processed", "a.pdf"))
	assert.FileExists(t, filepath.Join(f.dir, "Duplicates", "b.pdf"))
	assert.FileExists(t, filepath.Join(f.dir, "c.pdf"))

	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusCompleted, got.Status)
	assert.JSONEq(t, `{"directory":"`+f.dir+`","identifier":"grainger","total_documents":5,
		"processed":5,"successes":1,"duplicates":1,"failures":3}`, string(got.Context))
}

func TestExecute_DuplicateNeverCountsAsFailure(t *testing.T) {
	f := newFixture(t, "dup.pdf")
	reports := map[string]entity.DocumentReport{
		"dup.pdf": {Outcome: constants.OutcomeDuplicate, Identifier: constants.IdentifierDuplicate},
	}
	svc := NewService(f.runs, f.logs, scripted(reports, nil), quietLogger())
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)

	log, err := svc.Execute(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, log.Duplicates)
	assert.Zero(t, log.Failures)
	assert.Zero(t, log.Successes)
}

func TestExecute_TestModeLeavesFiles(t *testing.T) {
	f := newFixture(t, "a.pdf")
	reports := map[string]entity.DocumentReport{"a.pdf": {Outcome: constants.OutcomeSuccess, Identifier: "1"}}
	svc := NewService(f.runs, f.logs, scripted(reports, nil), quietLogger(),
		WithMover(ingest.NewMover("", false, quietLogger())))
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir, TestMode: true})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, run.RunID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.dir, "a.pdf"))
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, "a.pdf")
	calls := 0
	svc := NewService(f.runs, f.logs, func(context.Context, string, bool) (entity.DocumentReport, error) {
		calls++
		return entity.DocumentReport{}, nil
	}, quietLogger())
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)
	require.NoError(t, svc.RequestCancel(ctx, run.RunID, "operator"))

	log, err := svc.Execute(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusCancelled, log.Status)
	assert.Zero(t, calls)

	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got.Message)
	assert.Equal(t, MessageCancelledBeforeStart, *got.Message)

	err = svc.RequestCancel(ctx, run.RunID, "again")
	assert.True(t, errors.Is(err, common.ErrConflict))
	err = svc.RequestCancel(ctx, "nope", "")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestExecute_OnlyPendingOrQueuedRuns(t *testing.T) {
	f := newFixture(t, "a.pdf")
	calls := 0
	svc := NewService(f.runs, f.logs, func(context.Context, string, bool) (entity.DocumentReport, error) {
		calls++
		return entity.DocumentReport{Outcome: constants.OutcomeSuccess, Identifier: "1"}, nil
	}, quietLogger())
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir, TestMode: true})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, run.RunID)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	_, err = svc.Execute(ctx, run.RunID)
	assert.True(t, errors.Is(err, common.ErrConflict))
	assert.Equal(t, 1, calls)
	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusCompleted, got.Status)

	running := constants.RunStatusRunning
	other, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "other", Directory: f.dir, TestMode: true})
	require.NoError(t, err)
	require.NoError(t, f.runs.Update(ctx, other.RunID, repository.RunUpdate{Status: &running}))
	_, err = svc.Execute(ctx, other.RunID)
	assert.True(t, errors.Is(err, common.ErrConflict))
	assert.Equal(t, 1, calls)
}

func TestExecute_CancelBetweenDocuments(t *testing.T) {
	f := newFixture(t, "a.pdf", "b.pdf", "c.pdf")
	token := &StaticToken{}
	var seen []string
	process := func(_ context.Context, path string, _ bool) (entity.DocumentReport, error) {
		seen = append(seen, filepath.Base(path))
		token.Cancel() // raised mid-document; honored before the next one
		return entity.DocumentReport{Outcome: constants.OutcomeSuccess, Identifier: "7"}, nil
	}
	svc := NewService(f.runs, f.logs, process, quietLogger(),
		WithTokenFactory(func(string) CancellationToken { return token }))
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)

	log, err := svc.Execute(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, seen)
	assert.Equal(t, constants.RunStatusCancelled, log.Status)
	assert.Equal(t, 1, log.Processed)

	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, MessageCancelledByRequest, *got.Message)
	rows, err := svc.ProcessLog(ctx, run.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExecute_MissingDirectoryFailsRun(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.runs, f.logs, scripted(nil, nil), quietLogger())
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: filepath.Join(f.dir, "gone")})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, run.RunID)
	require.Error(t, err)
	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusFailed, got.Status)
	require.NotNil(t, got.Message)
	assert.Contains(t, *got.Message, "read dir")
}

type failingLogs struct{ repository.ProcessLogRepository }

func (failingLogs) Append(context.Context, entity.ProcessLog) (*entity.ProcessLog, error) {
	return nil, errors.New("disk full")
}

func TestExecute_PersistenceErrorFailsRun(t *testing.T) {
	f := newFixture(t, "a.pdf", "b.pdf")
	calls := 0
	svc := NewService(f.runs, failingLogs{f.logs}, func(context.Context, string, bool) (entity.DocumentReport, error) {
		calls++
		return entity.DocumentReport{Outcome: constants.OutcomeSuccess, Identifier: "1"}, nil
	}, quietLogger())
	ctx := context.Background()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)

	log, err := svc.Execute(ctx, run.RunID)
	require.Error(t, err)
	assert.Equal(t, constants.RunStatusFailed, log.Status)
	assert.Equal(t, 1, calls, "no further documents after a persistence failure")

	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "disk full", *got.Message)
}

func TestEnqueue_WorkerRunsToCompletion(t *testing.T) {
	f := newFixture(t, "a.pdf")
	done := make(chan struct{})
	svc := NewService(f.runs, f.logs, func(context.Context, string, bool) (entity.DocumentReport, error) {
		return entity.DocumentReport{Outcome: constants.OutcomeSuccess, Identifier: "9"}, nil
	}, quietLogger())
	ctx := context.Background()

	assert.Error(t, svc.Enqueue(ctx, "x"), "worker not started")

	q := svc.StartWorker()
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)
	require.NoError(t, svc.Enqueue(ctx, run.RunID))
	go func() { q.Shutdown(ctx); close(done) }()
	<-done

	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusCompleted, got.Status)

	list, err := svc.List(ctx, repository.RunFilter{BotName: "voucher"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnqueue_ClosedQueueLeavesRunPending(t *testing.T) {
	f := newFixture(t, "a.pdf")
	svc := NewService(f.runs, f.logs, scripted(nil, nil), quietLogger())
	ctx := context.Background()

	q := svc.StartWorker()
	q.Shutdown(ctx)
	run, err := svc.CreateRun(ctx, NewRun{BotName: "voucher", Identifier: "acme", Directory: f.dir})
	require.NoError(t, err)

	err = svc.Enqueue(ctx, run.RunID)
	assert.True(t, errors.Is(err, async.ErrQueueClosed))
	got, err := svc.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusPending, got.Status)
}
