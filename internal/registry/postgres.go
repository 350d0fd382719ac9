// Package registry stores children, visits and upload batches in PostgreSQL.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alysalud/visitas/internal/core"
)

// DBTX is the query surface shared by pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error)
}

// Postgres implements core.Registry on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ core.Registry = (*Postgres)(nil)

// WithTx runs fn in a transaction, committing when fn succeeds.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx core.RegistryTx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&Tx{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func (p *Postgres) CreateBatch(ctx context.Context, b *core.UploadBatch) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO upload_batches (id, tenant_id, file_name, month, year, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pgUUID(b.ID), b.TenantID, b.FileName, b.Month, b.Year, string(b.State), b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (p *Postgres) FinishBatch(ctx context.Context, b *core.UploadBatch) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := p.pool.Exec(ctx, `
		UPDATE upload_batches
		SET total_visits = $2, new_children = $3, existing_children = $4,
		    state = $5, error_message = $6, updated_at = $7
		WHERE id = $1`,
		pgUUID(b.ID), b.TotalVisits, b.NewChildren, b.ExistingChildren,
		string(b.State), core.ToPgText(b.ErrorMessage), b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s not found", b.ID)
	}
	return nil
}

func (p *Postgres) ListBatches(ctx context.Context, tenantID int64, limit int) ([]core.UploadBatch, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, tenant_id, file_name, month, year, total_visits, new_children,
		       existing_children, state, error_message, created_at, updated_at
		FROM upload_batches
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.UploadBatch, error) {
		var (
			b      core.UploadBatch
			id     pgtype.UUID
			month  int16
			year   int16
			state  string
			errMsg pgtype.Text
		)
		err := row.Scan(&id, &b.TenantID, &b.FileName, &month, &year, &b.TotalVisits, &b.NewChildren,
			&b.ExistingChildren, &state, &errMsg, &b.CreatedAt, &b.UpdatedAt)
		b.ID = uuid.UUID(id.Bytes)
		b.Month, b.Year = int(month), int(year)
		b.State = core.BatchState(state)
		b.ErrorMessage = core.FromPgText(errMsg)
		return b, err
	})
}

const childColumns = `c.id, c.tenant_id, c.document_key, c.name, c.birth_date, c.address,
	c.mother_document, c.mother_name, c.mother_phone, c.facility, c.clinical_record, c.age_bracket`

const visitColumns = `v.id, v.child_id, v.tenant_id, v.visit_date, v.status, v.observation,
	v.facility, v.social_actor`

// childScan holds the nullable destinations of childColumns.
type childScan struct {
	c                                           core.Child
	birth                                       pgtype.Date
	address, motherDoc, motherName, motherPhone pgtype.Text
	facility, clinicalRecord, ageBracket        pgtype.Text
}

func (s *childScan) dest() []any {
	return []any{
		&s.c.ID, &s.c.TenantID, &s.c.DocumentKey, &s.c.Name, &s.birth, &s.address,
		&s.motherDoc, &s.motherName, &s.motherPhone, &s.facility, &s.clinicalRecord, &s.ageBracket,
	}
}

func (s *childScan) child() core.Child {
	c := s.c
	c.BirthDate = core.FromPgDate(s.birth)
	c.Address = core.FromPgText(s.address)
	c.MotherDocument = core.FromPgText(s.motherDoc)
	c.MotherName = core.FromPgText(s.motherName)
	c.MotherPhone = core.FromPgText(s.motherPhone)
	c.Facility = core.FromPgText(s.facility)
	c.ClinicalRecord = core.FromPgText(s.clinicalRecord)
	c.AgeBracket = core.FromPgText(s.ageBracket)
	return c
}

// visitScan holds the nullable destinations of visitColumns.
type visitScan struct {
	v                                  core.Visit
	date                               pgtype.Date
	status                             string
	observation, facility, socialActor pgtype.Text
}

func (s *visitScan) dest() []any {
	return []any{
		&s.v.ID, &s.v.ChildID, &s.v.TenantID, &s.date, &s.status,
		&s.observation, &s.facility, &s.socialActor,
	}
}

func (s *visitScan) visit() core.Visit {
	v := s.v
	if d := core.FromPgDate(s.date); d != nil {
		v.Date = *d
	}
	v.Status = core.VisitStatus(s.status)
	v.Observation = core.FromPgText(s.observation)
	v.Facility = core.FromPgText(s.facility)
	v.SocialActor = core.FromPgText(s.socialActor)
	return v
}

// PeriodVisits returns the visits of period joined with their children,
// ordered by child name.
func (p *Postgres) PeriodVisits(ctx context.Context, tenantID int64, period core.Period, f core.ReportFilter) ([]core.VisitRecord, error) {
	date := pgtype.Date{Time: period.Date(), Valid: true}

	wb := NewWhereBuilder()
	wb.Add("v.tenant_id", tenantID)
	wb.Add("v.visit_date", date)
	wb.AddSearch(f.Search, "c.document_key", "c.name", "c.mother_name")
	wb.Add("c.facility", f.Facility)
	wb.Add("v.status", string(f.Status))
	if f.OnlyNew {
		wb.AddExpr("NOT EXISTS (SELECT 1 FROM visits pv WHERE pv.child_id = c.id AND pv.visit_date < %s)", date)
	}
	whereClause, args := wb.Build()

	query := `SELECT ` + childColumns + `, ` + visitColumns + `
		FROM visits v
		JOIN children c ON c.id = v.child_id` + whereClause + `
		ORDER BY c.name, c.id, v.id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.VisitRecord, error) {
		var cs childScan
		var vs visitScan
		err := row.Scan(append(cs.dest(), vs.dest()...)...)
		return core.VisitRecord{Child: cs.child(), Visit: vs.visit()}, err
	})
}

// Tx implements core.RegistryTx on one transaction.
type Tx struct {
	db DBTX
}

var _ core.RegistryTx = (*Tx)(nil)

func (t *Tx) FindChildrenByKeys(ctx context.Context, tenantID int64, keys []string) ([]core.Child, error) {
	rows, err := t.db.Query(ctx, `SELECT `+childColumns+`
		FROM children c
		WHERE c.tenant_id = $1 AND c.document_key = ANY($2)
		ORDER BY c.id`, tenantID, keys)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Child, error) {
		var cs childScan
		err := row.Scan(cs.dest()...)
		return cs.child(), err
	})
}

func (t *Tx) FindVisits(ctx context.Context, tenantID int64, childIDs []int64, date time.Time) ([]core.Visit, error) {
	rows, err := t.db.Query(ctx, `SELECT `+visitColumns+`
		FROM visits v
		WHERE v.tenant_id = $1 AND v.child_id = ANY($2) AND v.visit_date = $3
		ORDER BY v.id`, tenantID, childIDs, core.ToPgDate(&date))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Visit, error) {
		var vs visitScan
		err := row.Scan(vs.dest()...)
		return vs.visit(), err
	})
}

func (t *Tx) UpdateChildren(ctx context.Context, children []core.Child) error {
	b := &pgx.Batch{}
	for _, c := range children {
		b.Queue(`
			UPDATE children
			SET name = $2, birth_date = $3, address = $4, mother_document = $5, mother_name = $6,
			    mother_phone = $7, facility = $8, clinical_record = $9, age_bracket = $10, updated_at = now()
			WHERE id = $1`,
			c.ID, c.Name, core.ToPgDate(c.BirthDate), core.ToPgText(c.Address),
			core.ToPgText(c.MotherDocument), core.ToPgText(c.MotherName), core.ToPgText(c.MotherPhone),
			core.ToPgText(c.Facility), core.ToPgText(c.ClinicalRecord), core.ToPgText(c.AgeBracket),
		)
	}
	return t.db.SendBatch(ctx, b).Close()
}

func (t *Tx) CreateChildren(ctx context.Context, children []core.Child) ([]int64, error) {
	b := &pgx.Batch{}
	for _, c := range children {
		b.Queue(`
			INSERT INTO children (tenant_id, document_key, name, birth_date, address, mother_document,
			                      mother_name, mother_phone, facility, clinical_record, age_bracket)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			c.TenantID, c.DocumentKey, c.Name, core.ToPgDate(c.BirthDate), core.ToPgText(c.Address),
			core.ToPgText(c.MotherDocument), core.ToPgText(c.MotherName), core.ToPgText(c.MotherPhone),
			core.ToPgText(c.Facility), core.ToPgText(c.ClinicalRecord), core.ToPgText(c.AgeBracket),
		)
	}

	br := t.db.SendBatch(ctx, b)
	ids := make([]int64, len(children))
	for i := range children {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			br.Close()
			return nil, fmt.Errorf("insert child %s: %w", children[i].DocumentKey, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Tx) UpdateVisits(ctx context.Context, visits []core.Visit) error {
	b := &pgx.Batch{}
	for _, v := range visits {
		b.Queue(`
			UPDATE visits
			SET status = $2, observation = $3, facility = $4, social_actor = $5, updated_at = now()
			WHERE id = $1`,
			v.ID, string(v.Status), core.ToPgText(v.Observation), core.ToPgText(v.Facility), core.ToPgText(v.SocialActor),
		)
	}
	return t.db.SendBatch(ctx, b).Close()
}

var visitCopyColumns = []string{"tenant_id", "child_id", "visit_date", "status", "observation", "facility", "social_actor"}

func (t *Tx) CreateVisits(ctx context.Context, visits []core.Visit) error {
	_, err := t.db.CopyFrom(ctx, pgx.Identifier{"visits"}, visitCopyColumns,
		pgx.CopyFromSlice(len(visits), func(i int) ([]any, error) {
			v := visits[i]
			return []any{
				v.TenantID, v.ChildID, core.ToPgDate(&v.Date), string(v.Status),
				core.ToPgText(v.Observation), core.ToPgText(v.Facility), core.ToPgText(v.SocialActor),
			}, nil
		}),
	)
	return err
}
