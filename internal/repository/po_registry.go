package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
)

const maxCandidates = 50

// PORegistry reads purchase orders from the ERP tables. Read-only.
type PORegistry interface {
	SearchCandidates(ctx context.Context, pattern string) ([]entity.POCandidate, error)
	LoadLines(ctx context.Context, poID string) ([]entity.POLine, error)
}

type poRegistry struct {
	db           *DB
	businessUnit string
	log          *slog.Logger
}

// NewPORegistry scopes searches to businessUnit when it is non-empty.
func NewPORegistry(db *DB, businessUnit string, log *slog.Logger) PORegistry {
	return &poRegistry{db: db, businessUnit: strings.TrimSpace(businessUnit), log: log}
}

// LikePattern wraps a bare PO fragment as %fragment%.
func LikePattern(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "%") {
		return p
	}
	return "%" + p + "%"
}

func (r *poRegistry) SearchCandidates(ctx context.Context, pattern string) ([]entity.POCandidate, error) {
	pattern = LikePattern(pattern)
	b := r.db.builder()
	p := b.Table("ps_po_hdr").As("p")
	v := b.Table("ps_vendor").As("v")

	preds := []*entsql.Predicate{entsql.Like(p.C("po_id"), pattern)}
	if r.businessUnit != "" {
		preds = append(preds, entsql.EQ(p.C("business_unit"), r.businessUnit))
	}
	q, args := b.Select(p.C("po_id"), p.C("vendor_id"), v.C("name1"), p.C("po_status"), p.C("business_unit")).
		From(p).
		Join(v).On(p.C("vendor_id"), v.C("vendor_id")).
		Where(entsql.And(preds...)).
		OrderBy(p.C("po_id")).
		Limit(maxCandidates).
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.log.Error("po_registry.search.failed", "pattern", pattern, "error", err)
		return nil, common.WrapError(err, "search purchase orders")
	}
	defer rows.Close()

	out := []entity.POCandidate{}
	for rows.Next() {
		var c entity.POCandidate
		if err := rows.Scan(&c.POID, &c.VendorID, &c.VendorName, &c.Status, &c.BusinessUnit); err != nil {
			return nil, common.WrapError(err, "scan purchase order")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.log.Debug("po_registry.search", "pattern", pattern, "hits", len(out))
	return out, nil
}

// LoadLines returns one row per line/schedule/distribution, ordered.
func (r *poRegistry) LoadLines(ctx context.Context, poID string) ([]entity.POLine, error) {
	b := r.db.builder()
	a := b.Table("ps_po_line").As("a")
	s := b.Table("ps_po_line_ship").As("s")
	c := b.Table("ps_po_line_distrib").As("c")

	preds := []*entsql.Predicate{entsql.EQ(a.C("po_id"), poID)}
	if r.businessUnit != "" {
		preds = append(preds, entsql.EQ(a.C("business_unit"), r.businessUnit))
	}
	onShip := entsql.And(
		entsql.ColumnsEQ(a.C("business_unit"), s.C("business_unit")),
		entsql.ColumnsEQ(a.C("po_id"), s.C("po_id")),
		entsql.ColumnsEQ(a.C("line_nbr"), s.C("line_nbr")),
	)
	onDistrib := entsql.And(
		entsql.ColumnsEQ(a.C("business_unit"), c.C("business_unit")),
		entsql.ColumnsEQ(a.C("po_id"), c.C("po_id")),
		entsql.ColumnsEQ(a.C("line_nbr"), c.C("line_nbr")),
		entsql.ColumnsEQ(s.C("sched_nbr"), c.C("sched_nbr")),
	)
	q, args := b.Select(
		a.C("po_id"), a.C("line_nbr"), s.C("sched_nbr"), c.C("distrib_line_num"),
		a.C("descr254_mixed"), c.C("merchandise_amt"), c.C("account"), c.C("fund_code"), c.C("program_code"),
	).
		From(a).
		Join(s).OnP(onShip).
		Join(c).OnP(onDistrib).
		Where(entsql.And(preds...)).
		OrderBy(a.C("line_nbr"), s.C("sched_nbr"), c.C("distrib_line_num")).
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.log.Error("po_registry.lines.failed", "po_id", poID, "error", err)
		return nil, common.WrapError(err, "load purchase order lines")
	}
	defer rows.Close()

	var out []entity.POLine
	for rows.Next() {
		var (
			l             entity.POLine
			fund, program sql.NullString
		)
		if err := rows.Scan(&l.POID, &l.Line, &l.Sched, &l.Distrib, &l.Description,
			&l.Amount, &l.Account, &fund, &program); err != nil {
			return nil, common.WrapError(err, "scan purchase order line")
		}
		if fund.Valid {
			l.Fund = &fund.String
		}
		if program.Valid {
			l.Program = &program.String
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.log.Debug("po_registry.lines", "po_id", poID, "rows", len(out))
	return out, nil
}
