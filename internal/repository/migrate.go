package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

var bookkeepingDDL = map[string][]string{
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS bot_runs (
			id BIGSERIAL PRIMARY KEY,
			runid VARCHAR(100) NOT NULL UNIQUE,
			bot_name VARCHAR(100) NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			test_mode BOOLEAN NOT NULL DEFAULT FALSE,
			context JSONB,
			message VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS bot_runs_bot_name_idx ON bot_runs (bot_name)`,
		`CREATE INDEX IF NOT EXISTS bot_runs_status_idx ON bot_runs (status)`,
		`CREATE TABLE IF NOT EXISTS bot_process_log (
			id BIGSERIAL PRIMARY KEY,
			runid VARCHAR(100) NOT NULL REFERENCES bot_runs (runid),
			filename VARCHAR(255) NOT NULL,
			voucher_id VARCHAR(100) NOT NULL,
			amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			invoice VARCHAR(100) NOT NULL DEFAULT '',
			status VARCHAR(50) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS bot_process_log_runid_idx ON bot_process_log (runid)`,
	},
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS bot_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			runid TEXT NOT NULL UNIQUE,
			bot_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			cancel_requested BOOLEAN NOT NULL DEFAULT 0,
			test_mode BOOLEAN NOT NULL DEFAULT 0,
			context TEXT,
			message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS bot_runs_bot_name_idx ON bot_runs (bot_name)`,
		`CREATE INDEX IF NOT EXISTS bot_runs_status_idx ON bot_runs (status)`,
		`CREATE TABLE IF NOT EXISTS bot_process_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			runid TEXT NOT NULL REFERENCES bot_runs (runid),
			filename TEXT NOT NULL,
			voucher_id TEXT NOT NULL,
			amount REAL NOT NULL DEFAULT 0,
			invoice TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS bot_process_log_runid_idx ON bot_process_log (runid)`,
	},
}

// registryDDL mirrors the subset of the ERP purchasing tables the PO
// stages read. Production points at the ERP replica; these tables back
// embedded mode and tests.
var registryDDL = []string{
	`CREATE TABLE IF NOT EXISTS ps_vendor (
		vendor_id VARCHAR(20) PRIMARY KEY,
		name1 VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ps_po_hdr (
		business_unit VARCHAR(10) NOT NULL,
		po_id VARCHAR(20) NOT NULL,
		vendor_id VARCHAR(20) NOT NULL,
		po_status VARCHAR(4) NOT NULL DEFAULT 'D',
		PRIMARY KEY (business_unit, po_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ps_po_line (
		business_unit VARCHAR(10) NOT NULL,
		po_id VARCHAR(20) NOT NULL,
		line_nbr INTEGER NOT NULL,
		descr254_mixed VARCHAR(254) NOT NULL DEFAULT '',
		PRIMARY KEY (business_unit, po_id, line_nbr)
	)`,
	`CREATE TABLE IF NOT EXISTS ps_po_line_ship (
		business_unit VARCHAR(10) NOT NULL,
		po_id VARCHAR(20) NOT NULL,
		line_nbr INTEGER NOT NULL,
		sched_nbr INTEGER NOT NULL,
		PRIMARY KEY (business_unit, po_id, line_nbr, sched_nbr)
	)`,
	`CREATE TABLE IF NOT EXISTS ps_po_line_distrib (
		business_unit VARCHAR(10) NOT NULL,
		po_id VARCHAR(20) NOT NULL,
		line_nbr INTEGER NOT NULL,
		sched_nbr INTEGER NOT NULL,
		distrib_line_num INTEGER NOT NULL,
		merchandise_amt NUMERIC(14,2) NOT NULL DEFAULT 0,
		account VARCHAR(10) NOT NULL DEFAULT '',
		fund_code VARCHAR(5),
		program_code VARCHAR(5),
		PRIMARY KEY (business_unit, po_id, line_nbr, sched_nbr, distrib_line_num)
	)`,
}

// Migrate creates the bookkeeping tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	stmts, ok := bookkeepingDDL[d.Dialect()]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", d.Dialect())
	}
	return d.exec(ctx, stmts)
}

// MigrateRegistry creates local copies of the purchasing tables.
func (d *DB) MigrateRegistry(ctx context.Context) error {
	return d.exec(ctx, registryDDL)
}

func (d *DB) exec(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if err := d.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			d.logger.Error("db.migrate.failed", "statement", i, "error", err)
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	d.logger.Info("db.migrate.ok", "dialect", d.Dialect(), "statements", len(stmts))
	return nil
}
