package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
)

const processLogTable = "bot_process_log"

// ProcessLogRepository is append-only.
type ProcessLogRepository interface {
	Append(ctx context.Context, row entity.ProcessLog) (*entity.ProcessLog, error)
	ListByRun(ctx context.Context, runID string) ([]entity.ProcessLog, error)
}

type processLogRepo struct {
	db  *DB
	log *slog.Logger
}

func NewProcessLogRepository(db *DB, log *slog.Logger) ProcessLogRepository {
	return &processLogRepo{db: db, log: log}
}

func (r *processLogRepo) Append(ctx context.Context, row entity.ProcessLog) (*entity.ProcessLog, error) {
	row.CreatedAt = time.Now().UTC()
	q, args := r.db.builder().Insert(processLogTable).
		Columns("runid", "filename", "voucher_id", "amount", "invoice", "status", "message", "created_at").
		Values(row.RunID, truncateColumn(row.Filename, 255), truncateColumn(row.Identifier, 100), row.Amount,
			truncateColumn(row.Invoice, 100), string(row.Status), row.Message, row.CreatedAt).
		Returning("id").
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.log.Error("process_log.append.failed", "run_id", row.RunID, "file", row.Filename, "error", err)
		return nil, common.WrapError(err, "append process log")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&row.ID); err != nil {
			return nil, common.WrapError(err, "append process log")
		}
	}
	if err := rows.Err(); err != nil {
		r.log.Error("process_log.append.failed", "run_id", row.RunID, "file", row.Filename, "error", err)
		return nil, common.WrapError(err, "append process log")
	}
	r.log.Debug("process_log.appended", "run_id", row.RunID, "file", row.Filename, "status", row.Status)
	return &row, nil
}

func (r *processLogRepo) ListByRun(ctx context.Context, runID string) ([]entity.ProcessLog, error) {
	q, args := r.db.builder().
		Select("id", "runid", "filename", "voucher_id", "amount", "invoice", "status", "message", "created_at").
		From(r.db.builder().Table(processLogTable)).
		Where(entsql.EQ("runid", runID)).
		OrderBy("id").
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, common.WrapError(err, "list process log")
	}
	defer rows.Close()

	var out []entity.ProcessLog
	for rows.Next() {
		var (
			p      entity.ProcessLog
			status string
		)
		if err := rows.Scan(&p.ID, &p.RunID, &p.Filename, &p.Identifier, &p.Amount, &p.Invoice,
			&status, &p.Message, &p.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan process log")
		}
		p.Status = constants.Outcome(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
