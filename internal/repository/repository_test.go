package repository

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestDB returns a migrated SQLite database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "bots.db"),
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.MigrateRegistry(context.Background()))
	return db
}

func seedRegistry(t *testing.T, db *DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO ps_vendor (vendor_id, name1) VALUES ('0000012345', 'ACME SUPPLY CO')`,
		`INSERT INTO ps_vendor (vendor_id, name1) VALUES ('0000099999', 'CLASS LEASING')`,
		`INSERT INTO ps_po_hdr (business_unit, po_id, vendor_id, po_status) VALUES ('KERNH', '0000227878', '0000012345', 'D')`,
		`INSERT INTO ps_po_hdr (business_unit, po_id, vendor_id, po_status) VALUES ('KERNH', 'LN9721', '0000099999', 'D')`,
		`INSERT INTO ps_po_hdr (business_unit, po_id, vendor_id, po_status) VALUES ('OTHER', '0000227879', '0000012345', 'D')`,
		`INSERT INTO ps_po_line (business_unit, po_id, line_nbr, descr254_mixed) VALUES ('KERNH', '0000227878', 1, 'Widgets')`,
		`INSERT INTO ps_po_line (business_unit, po_id, line_nbr, descr254_mixed) VALUES ('KERNH', '0000227878', 2, 'Freight')`,
		`INSERT INTO ps_po_line_ship (business_unit, po_id, line_nbr, sched_nbr) VALUES ('KERNH', '0000227878', 1, 1)`,
		`INSERT INTO ps_po_line_ship (business_unit, po_id, line_nbr, sched_nbr) VALUES ('KERNH', '0000227878', 2, 1)`,
		`INSERT INTO ps_po_line_distrib (business_unit, po_id, line_nbr, sched_nbr, distrib_line_num, merchandise_amt, account, fund_code, program_code)
			VALUES ('KERNH', '0000227878', 1, 1, 1, 300.00, '640000', '11000', NULL)`,
		`INSERT INTO ps_po_line_distrib (business_unit, po_id, line_nbr, sched_nbr, distrib_line_num, merchandise_amt, account, fund_code, program_code)
			VALUES ('KERNH', '0000227878', 1, 1, 2, 200.00, '640000', '11000', 'P01')`,
		`INSERT INTO ps_po_line_distrib (business_unit, po_id, line_nbr, sched_nbr, distrib_line_num, merchandise_amt, account, fund_code, program_code)
			VALUES ('KERNH', '0000227878', 2, 1, 1, 50.00, '641000', NULL, NULL)`,
	}
	require.NoError(t, db.exec(context.Background(), stmts))
}

func TestRuns_CreateGetCollision(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db, quietLogger())
	ctx := context.Background()

	created, err := repo.Create(ctx, entity.BotRun{
		RunID:    "test-Acme-20250301-101500",
		BotName:  "voucher_entry",
		TestMode: true,
		Context:  json.RawMessage(`{"vendor":"acme"}`),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, constants.RunStatusPending, created.Status)

	got, err := repo.Get(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, "voucher_entry", got.BotName)
	assert.True(t, got.TestMode)
	assert.False(t, got.CancelRequested)
	assert.JSONEq(t, `{"vendor":"acme"}`, string(got.Context))
	assert.Nil(t, got.Message)

	_, err = repo.Create(ctx, entity.BotRun{RunID: created.RunID, BotName: "voucher_entry"})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRuns_UpdateAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db, quietLogger())
	ctx := context.Background()

	for _, id := range []string{"A-1", "B-2", "C-3"} {
		_, err := repo.Create(ctx, entity.BotRun{RunID: id, BotName: "voucher_entry"})
		require.NoError(t, err)
	}
	running := constants.RunStatusRunning
	msg := "started"
	require.NoError(t, repo.Update(ctx, "B-2", RunUpdate{Status: &running, Message: &msg, Context: json.RawMessage(`{"total_documents":3}`)}))

	got, err := repo.Get(ctx, "B-2")
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusRunning, got.Status)
	require.NotNil(t, got.Message)
	assert.Equal(t, "started", *got.Message)

	list, err := repo.List(ctx, RunFilter{Status: constants.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B-2", list[0].RunID)

	all, err := repo.List(ctx, RunFilter{BotName: "voucher_entry", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = repo.Update(ctx, "nope", RunUpdate{Status: &running})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRuns_RequestCancel(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db, quietLogger())
	ctx := context.Background()

	_, err := repo.Create(ctx, entity.BotRun{RunID: "R-1", BotName: "voucher_entry"})
	require.NoError(t, err)

	flag, err := repo.CancelRequested(ctx, "R-1")
	require.NoError(t, err)
	assert.False(t, flag)

	require.NoError(t, repo.RequestCancel(ctx, "R-1"))
	flag, err = repo.CancelRequested(ctx, "R-1")
	require.NoError(t, err)
	assert.True(t, flag)

	done := constants.RunStatusCompleted
	require.NoError(t, repo.Update(ctx, "R-1", RunUpdate{Status: &done}))
	assert.ErrorIs(t, repo.RequestCancel(ctx, "R-1"), common.ErrConflict)
	assert.ErrorIs(t, repo.RequestCancel(ctx, "R-404"), common.ErrNotFound)

	_, err = repo.CancelRequested(ctx, "R-404")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessLog_AppendAndList(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunRepository(db, quietLogger())
	logs := NewProcessLogRepository(db, quietLogger())
	ctx := context.Background()

	_, err := runs.Create(ctx, entity.BotRun{RunID: "R-9", BotName: "voucher_entry"})
	require.NoError(t, err)

	rows := []entity.ProcessLog{
		{RunID: "R-9", Filename: "a.pdf", Identifier: "00012345", Amount: 500, Invoice: "INV-1", Status: constants.OutcomeSuccess},
		{RunID: "R-9", Filename: "b.pdf", Identifier: "Duplicate", Amount: 20.5, Invoice: "INV-2", Status: constants.OutcomeDuplicate},
		{RunID: "R-9", Filename: "c.pdf", Identifier: "ReviewBlocked", Invoice: "INV-3", Status: constants.OutcomeFailure, Message: "confidence below threshold"},
	}
	for _, r := range rows {
		saved, err := logs.Append(ctx, r)
		require.NoError(t, err)
		assert.NotZero(t, saved.ID)
	}

	got, err := logs.ListByRun(ctx, "R-9")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a.pdf", got[0].Filename)
	assert.Equal(t, constants.OutcomeDuplicate, got[1].Status)
	assert.Equal(t, 20.5, got[1].Amount)
	assert.Equal(t, "confidence below threshold", got[2].Message)
}

func TestPORegistry_Search(t *testing.T) {
	db := openTestDB(t)
	seedRegistry(t, db)
	reg := NewPORegistry(db, "KERNH", quietLogger())

	hits, err := reg.SearchCandidates(context.Background(), "227878")
	require.NoError(t, err)
	require.Len(t, hits, 1, "other business units are excluded")
	assert.Equal(t, entity.POCandidate{
		POID: "0000227878", VendorID: "0000012345", VendorName: "ACME SUPPLY CO", Status: "D", BusinessUnit: "KERNH",
	}, hits[0])

	hits, err = reg.SearchCandidates(context.Background(), "LN%")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "CLASS LEASING", hits[0].VendorName)

	hits, err = reg.SearchCandidates(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, hits)

	all := NewPORegistry(db, "", quietLogger())
	hits, err = all.SearchCandidates(context.Background(), "22787")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestPORegistry_LoadLines(t *testing.T) {
	db := openTestDB(t)
	seedRegistry(t, db)
	reg := NewPORegistry(db, "KERNH", quietLogger())

	lines, err := reg.LoadLines(context.Background(), "0000227878")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, 1, lines[0].Line)
	assert.Equal(t, 1, lines[0].Distrib)
	assert.Equal(t, 300.0, lines[0].Amount)
	assert.Nil(t, lines[0].Program)
	require.NotNil(t, lines[1].Program)
	assert.Equal(t, "P01", *lines[1].Program)
	assert.Equal(t, 2, lines[2].Line)
	assert.Equal(t, "Freight", lines[2].Description)
	assert.Nil(t, lines[2].Fund)

	none, err := reg.LoadLines(context.Background(), "0000000000")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%227878%", LikePattern(" 227878 "))
	assert.Equal(t, "LN%", LikePattern("LN%"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", SQLiteDSN("x.db"))
	assert.Equal(t, "file::memory:", SQLiteDSN("file::memory:"))
}
