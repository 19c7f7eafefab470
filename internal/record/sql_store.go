package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
	"github.com/matthewbaird/dirconsole/internal/types"
)

// SQLStore implements Store on the records and record_values tables. Each
// filter becomes an EXISTS sub-select on record_values and each sort key a
// LEFT JOIN, so a directory's schema never changes the table layout.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a store over an open, migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

func (s *SQLStore) Create(ctx context.Context, dir *schema.Directory, companyID string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, true)
	if err != nil {
		return nil, err
	}
	dropBlank(vals)

	now := s.now().UTC()
	rec := &Record{
		ID:          uuid.New().String(),
		DirectoryID: dir.ID,
		CompanyID:   companyID,
		Values:      orderedValues(dir, vals),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.inTx(ctx, "create", func(tx *sql.Tx) error {
		q, args := builder().Insert("records").
			Columns("id", "directory_id", "company_id", "created_at", "updated_at").
			Values(rec.ID, dir.ID, companyID, now.UnixNano(), now.UnixNano()).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		return insertValues(ctx, tx, rec.ID, vals)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLStore) Get(ctx context.Context, dir *schema.Directory, id string) (*Record, error) {
	rec, err := getRecord(ctx, s.db, dir, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, readError("get", err)
	}
	return rec, err
}

func (s *SQLStore) Update(ctx context.Context, dir *schema.Directory, id string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, false)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update", dir, id, func(tx *sql.Tx) error {
		for fieldID := range vals {
			q, args := builder().Delete("record_values").
				Where(entsql.And(entsql.EQ("record_id", id), entsql.EQ("field_id", fieldID))).
				Query()
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return err
			}
		}
		dropBlank(vals)
		return insertValues(ctx, tx, id, vals)
	})
}

func (s *SQLStore) Replace(ctx context.Context, dir *schema.Directory, id string, values []Input) (*Record, error) {
	vals, err := coerceInputs(dir, values, true)
	if err != nil {
		return nil, err
	}
	dropBlank(vals)
	return s.mutate(ctx, "replace", dir, id, func(tx *sql.Tx) error {
		q, args := builder().Delete("record_values").Where(entsql.EQ("record_id", id)).Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		return insertValues(ctx, tx, id, vals)
	})
}

// mutate runs fn against an existing record, bumps updated_at and returns
// the record as stored.
func (s *SQLStore) mutate(ctx context.Context, op string, dir *schema.Directory, id string, fn func(*sql.Tx) error) (*Record, error) {
	var rec *Record
	err := s.inTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := getRecord(ctx, tx, dir, id); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		q, args := builder().Update("records").
			Set("updated_at", s.now().UTC().UnixNano()).
			Where(entsql.EQ("id", id)).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		var err error
		rec, err = getRecord(ctx, tx, dir, id)
		return err
	})
	return rec, err
}

func (s *SQLStore) Delete(ctx context.Context, dir *schema.Directory, id string) error {
	return s.inTx(ctx, "delete", func(tx *sql.Tx) error {
		if _, err := getRecord(ctx, tx, dir, id); err != nil {
			return err
		}
		return deleteRecords(ctx, tx, []string{id})
	})
}

func (s *SQLStore) DeleteByGroup(ctx context.Context, dir *schema.Directory, groupFieldID, value string) ([]string, error) {
	p, err := groupPredicate(dir, groupFieldID, value)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = s.inTx(ctx, "delete_by_group", func(tx *sql.Tx) error {
		b := builder()
		r := b.Table("records").As("r")
		q, args := b.Select(r.C("id")).From(r).
			Where(entsql.And(entsql.EQ(r.C("directory_id"), dir.ID), sqlPredicate(b, r, 0, p))).
			OrderBy(r.C("seq")).
			Query()
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()
		return deleteRecords(ctx, tx, ids)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLStore) List(ctx context.Context, dir *schema.Directory, p query.ListParams) (*Page, error) {
	preds, err := compileFilters(dir, p.Filters)
	if err != nil {
		return nil, err
	}
	sortFields, err := compileSorting(dir, p.Sorting)
	if err != nil {
		return nil, err
	}
	page := p.Page.Normalize()
	out := &Page{
		Fields:   dir.OrderedFields(),
		Records:  []*Record{},
		Page:     page.Number,
		PageSize: page.Size,
	}

	b := builder()
	r := b.Table("records").As("r")
	search := strings.TrimSpace(p.Search)
	var searchFields []any
	for _, f := range dir.Fields {
		if searchable(f) {
			searchFields = append(searchFields, f.ID)
		}
	}
	if search != "" && len(searchFields) == 0 {
		return out, nil
	}

	where := func() *entsql.Predicate {
		ps := []*entsql.Predicate{entsql.EQ(r.C("directory_id"), dir.ID)}
		if p.CompanyID != "" {
			ps = append(ps, entsql.EQ(r.C("company_id"), p.CompanyID))
		}
		if search != "" {
			v := b.Table("record_values").As("sv")
			ps = append(ps, entsql.Exists(b.Select(v.C("record_id")).From(v).Where(entsql.And(
				entsql.ColumnsEQ(v.C("record_id"), r.C("id")),
				entsql.In(v.C("field_id"), searchFields...),
				entsql.Contains(v.C("value_fold"), strings.ToLower(search)),
			))))
		}
		for i, pr := range preds {
			ps = append(ps, sqlPredicate(b, r, i, pr))
		}
		return entsql.And(ps...)
	}

	countQ, countArgs := b.Select(entsql.Count("*")).From(r).Where(where()).Query()
	if err := s.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&out.Total); err != nil {
		return nil, readError("list", err)
	}
	if out.Total == 0 {
		return out, nil
	}

	sel := b.Select(r.C("id")).From(r)
	for i, f := range sortFields {
		sv := b.Table("record_values").As(fmt.Sprintf("s%d", i))
		sel.LeftJoin(sv).OnP(entsql.And(
			entsql.ColumnsEQ(sv.C("record_id"), r.C("id")),
			entsql.EQ(sv.C("field_id"), f.ID),
		))
		col := sv.C(valueColumn(f.Type))
		if p.Sorting[i].Direction == query.Desc {
			sel.OrderBy(entsql.Desc(col))
		} else {
			sel.OrderBy(entsql.Asc(col))
		}
	}
	q, args := sel.Where(where()).
		OrderBy(r.C("seq")).
		Limit(page.Size).
		Offset(page.Offset()).
		Query()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, readError("list", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, readError("list", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, readError("list", err)
	}

	for _, id := range ids {
		rec, err := getRecord(ctx, s.db, dir, id)
		if err != nil {
			return nil, readError("list", err)
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// inTx runs fn in a transaction. Database failures are wrapped as
// non-retryable TransportErrors; domain errors pass through.
func (s *SQLStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeError(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return writeError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return writeError(op, err)
	}
	return nil
}

// valueColumn is the record_values column compared for a type.
func valueColumn(t schema.SemanticType) string {
	if t.Numeric() || t.Temporal() || t == schema.TypeBoolean {
		return "value_num"
	}
	return "value_text"
}

// encodeValue returns the value_text and value_num of a value.
func encodeValue(v types.Value) (string, any) {
	switch x := v.(type) {
	case types.NumberValue:
		return x.String(), float64(x)
	case types.BooleanValue:
		if x {
			return x.String(), 1.0
		}
		return x.String(), 0.0
	case types.DateValue:
		return x.String(), float64(x.Time.UnixMilli())
	}
	return v.String(), nil
}

// fold lowers a substring argument to match value_fold. SQLite's LOWER
// and LIKE only fold ASCII.
func fold(p predicate) string { return strings.ToLower(p.arg.String()) }

func argValue(p predicate) any {
	text, num := encodeValue(p.arg)
	if valueColumn(p.field.Type) == "value_num" {
		return num
	}
	return text
}

// sqlPredicate renders one filter as an EXISTS test on the record's value
// row for the field. Negative operators are NOT EXISTS so blanks match them.
func sqlPredicate(b *entsql.DialectBuilder, r *entsql.SelectTable, i int, p predicate) *entsql.Predicate {
	v := b.Table("record_values").As(fmt.Sprintf("v%d", i))
	sub := func(extra ...*entsql.Predicate) *entsql.Selector {
		ps := append([]*entsql.Predicate{
			entsql.ColumnsEQ(v.C("record_id"), r.C("id")),
			entsql.EQ(v.C("field_id"), p.field.ID),
		}, extra...)
		return b.Select(v.C("record_id")).From(v).Where(entsql.And(ps...))
	}
	col := v.C(valueColumn(p.field.Type))

	switch p.op {
	case filter.OpBlank:
		return entsql.NotExists(sub())
	case filter.OpNotBlank:
		return entsql.Exists(sub())
	case filter.OpIsTrue:
		return entsql.Exists(sub(entsql.EQ(v.C("value_num"), 1)))
	case filter.OpIsFalse:
		return entsql.Exists(sub(entsql.EQ(v.C("value_num"), 0)))
	case filter.OpEquals:
		return entsql.Exists(sub(entsql.EQ(col, argValue(p))))
	case filter.OpNotEqual:
		return entsql.NotExists(sub(entsql.EQ(col, argValue(p))))
	case filter.OpContains:
		return entsql.Exists(sub(entsql.Contains(v.C("value_fold"), fold(p))))
	case filter.OpNotContains:
		return entsql.NotExists(sub(entsql.Contains(v.C("value_fold"), fold(p))))
	case filter.OpStartsWith:
		return entsql.Exists(sub(entsql.HasPrefix(v.C("value_fold"), fold(p))))
	case filter.OpEndsWith:
		return entsql.Exists(sub(entsql.HasSuffix(v.C("value_fold"), fold(p))))
	case filter.OpGreaterThan:
		return entsql.Exists(sub(entsql.GT(col, argValue(p))))
	case filter.OpGreaterThanOrEqual:
		return entsql.Exists(sub(entsql.GTE(col, argValue(p))))
	case filter.OpLessThan:
		return entsql.Exists(sub(entsql.LT(col, argValue(p))))
	case filter.OpLessThanOrEqual:
		return entsql.Exists(sub(entsql.LTE(col, argValue(p))))
	}
	return entsql.False()
}

func insertValues(ctx context.Context, q querier, recordID string, vals map[string]types.Value) error {
	if len(vals) == 0 {
		return nil
	}
	ins := builder().Insert("record_values").Columns("record_id", "field_id", "value_text", "value_fold", "value_num")
	for fieldID, v := range vals {
		text, num := encodeValue(v)
		ins.Values(recordID, fieldID, text, strings.ToLower(text), num)
	}
	stmt, args := ins.Query()
	_, err := q.ExecContext(ctx, stmt, args...)
	return err
}

func deleteRecords(ctx context.Context, q querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	b := builder()
	stmt, sargs := b.Delete("record_values").Where(entsql.In("record_id", args...)).Query()
	if _, err := q.ExecContext(ctx, stmt, sargs...); err != nil {
		return err
	}
	stmt, sargs = b.Delete("records").Where(entsql.In("id", args...)).Query()
	_, err := q.ExecContext(ctx, stmt, sargs...)
	return err
}

// getRecord loads a record with its values. Values of fields no longer in
// the directory schema are skipped.
func getRecord(ctx context.Context, q querier, dir *schema.Directory, id string) (*Record, error) {
	b := builder()
	stmt, args := b.Select("id", "directory_id", "company_id", "created_at", "updated_at").
		From(b.Table("records")).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("directory_id", dir.ID))).
		Query()
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	found := false
	if rows.Next() {
		var created, updated int64
		if err := rows.Scan(&rec.ID, &rec.DirectoryID, &rec.CompanyID, &created, &updated); err != nil {
			rows.Close()
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	stmt, args = b.Select("field_id", "value_text").
		From(b.Table("record_values")).
		Where(entsql.EQ("record_id", id)).
		Query()
	rows, err = q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	vals := make(map[string]types.Value)
	for rows.Next() {
		var fieldID, text string
		if err := rows.Scan(&fieldID, &text); err != nil {
			return nil, err
		}
		f := dir.Field(fieldID)
		if f == nil {
			continue
		}
		v, err := types.Parse(f.Type, text)
		if err != nil {
			return nil, fmt.Errorf("decoding %s of record %s: %w", f.Name, id, err)
		}
		vals[fieldID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rec.Values = orderedValues(dir, vals)
	return rec, nil
}
