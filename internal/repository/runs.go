package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
)

const runsTable = "bot_runs"

var runColumns = []string{
	"id", "runid", "bot_name", "status", "cancel_requested", "test_mode",
	"context", "message", "created_at", "updated_at",
}

// RunUpdate lists the columns to change; nil fields are left alone.
type RunUpdate struct {
	Status  *constants.RunStatus
	Message *string
	Context json.RawMessage
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	BotName string
	Status  constants.RunStatus
	Limit   int
}

type RunRepository interface {
	Create(ctx context.Context, run entity.BotRun) (*entity.BotRun, error)
	Get(ctx context.Context, runID string) (*entity.BotRun, error)
	List(ctx context.Context, f RunFilter) ([]entity.BotRun, error)
	Update(ctx context.Context, runID string, u RunUpdate) error
	RequestCancel(ctx context.Context, runID string) error
	CancelRequested(ctx context.Context, runID string) (bool, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	return &runRepo{db: db, log: log}
}

// Create inserts a run. A runid collision returns common.ErrConflict.
func (r *runRepo) Create(ctx context.Context, run entity.BotRun) (*entity.BotRun, error) {
	now := time.Now().UTC()
	if len(run.Context) == 0 {
		run.Context = json.RawMessage(`{}`)
	}
	if run.Status == "" {
		run.Status = constants.RunStatusPending
	}
	q, args := r.db.builder().Insert(runsTable).
		Columns("runid", "bot_name", "status", "cancel_requested", "test_mode", "context", "message", "created_at", "updated_at").
		Values(run.RunID, run.BotName, string(run.Status), run.CancelRequested, run.TestMode, string(run.Context), nullable(run.Message), now, now).
		Returning("id").
		Query()

	id, err := r.insertReturningID(ctx, q, args)
	if err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: runid %s already exists", common.ErrConflict, run.RunID)
		}
		r.log.Error("runs.create.failed", "run_id", run.RunID, "error", err)
		return nil, common.WrapError(err, "create run")
	}
	run.ID = id
	run.CreatedAt, run.UpdatedAt = now, now
	r.log.Info("runs.created", "run_id", run.RunID, "bot", run.BotName, "test_mode", run.TestMode)
	return &run, nil
}

func (r *runRepo) insertReturningID(ctx context.Context, q string, args []any) (int64, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("insert returned no id")
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

func (r *runRepo) Get(ctx context.Context, runID string) (*entity.BotRun, error) {
	q, args := r.db.builder().Select(runColumns...).
		From(r.db.builder().Table(runsTable)).
		Where(entsql.EQ("runid", runID)).
		Query()
	runs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: run %s", common.ErrNotFound, runID)
	}
	return &runs[0], nil
}

func (r *runRepo) List(ctx context.Context, f RunFilter) ([]entity.BotRun, error) {
	sel := r.db.builder().Select(runColumns...).
		From(r.db.builder().Table(runsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	var preds []*entsql.Predicate
	if f.BotName != "" {
		preds = append(preds, entsql.EQ("bot_name", f.BotName))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q, args := sel.Limit(limit).Query()
	return r.query(ctx, q, args)
}

func (r *runRepo) query(ctx context.Context, q string, args []any) ([]entity.BotRun, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.log.Error("runs.query.failed", "error", err)
		return nil, common.WrapError(err, "query runs")
	}
	defer rows.Close()

	var out []entity.BotRun
	for rows.Next() {
		var (
			run     entity.BotRun
			status  string
			ctxJSON []byte
			msg     sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.BotName, &status, &run.CancelRequested,
			&run.TestMode, &ctxJSON, &msg, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, common.WrapError(err, "scan run")
		}
		run.Status = constants.RunStatus(status)
		if len(ctxJSON) > 0 {
			run.Context = json.RawMessage(ctxJSON)
		}
		if msg.Valid {
			run.Message = &msg.String
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *runRepo) Update(ctx context.Context, runID string, u RunUpdate) error {
	upd := r.db.builder().Update(runsTable).Set("updated_at", time.Now().UTC())
	if u.Status != nil {
		upd.Set("status", string(*u.Status))
	}
	if u.Message != nil {
		upd.Set("message", truncateColumn(*u.Message, 255))
	}
	if u.Context != nil {
		upd.Set("context", string(u.Context))
	}
	q, args := upd.Where(entsql.EQ("runid", runID)).Query()

	n, err := r.exec(ctx, q, args)
	if err != nil {
		r.log.Error("runs.update.failed", "run_id", runID, "error", err)
		return common.WrapError(err, "update run")
	}
	if n == 0 {
		return fmt.Errorf("%w: run %s", common.ErrNotFound, runID)
	}
	if u.Status != nil {
		r.log.Info("runs.status", "run_id", runID, "status", *u.Status)
	}
	return nil
}

// RequestCancel raises cancel_requested on a non-terminal run.
func (r *runRepo) RequestCancel(ctx context.Context, runID string) error {
	terminal := []any{
		string(constants.RunStatusCompleted),
		string(constants.RunStatusCancelled),
		string(constants.RunStatusFailed),
	}
	q, args := r.db.builder().Update(runsTable).
		Set("cancel_requested", true).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("runid", runID), entsql.NotIn("status", terminal...))).
		Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		return common.WrapError(err, "request cancel")
	}
	if n > 0 {
		r.log.Info("runs.cancel_requested", "run_id", runID)
		return nil
	}
	run, err := r.Get(ctx, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is already %s", common.ErrConflict, runID, run.Status)
}

func (r *runRepo) CancelRequested(ctx context.Context, runID string) (bool, error) {
	q, args := r.db.builder().Select("cancel_requested").
		From(r.db.builder().Table(runsTable)).
		Where(entsql.EQ("runid", runID)).
		Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return false, common.WrapError(err, "read cancel flag")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, err
		}
		return false, fmt.Errorf("%w: run %s", common.ErrNotFound, runID)
	}
	var flag bool
	if err := rows.Scan(&flag); err != nil {
		return false, err
	}
	return flag, nil
}

func (r *runRepo) exec(ctx context.Context, q string, args []any) (int64, error) {
	var res sql.Result
	if err := r.db.Driver.Exec(ctx, q, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func truncateColumn(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
