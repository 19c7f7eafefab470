package cascade

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// SQLStore implements Store on the cascading_* tables.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open, migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

func (s *SQLStore) Config(ctx context.Context, directoryID, parentFieldID string) (*Config, error) {
	b := builder()
	q, args := b.Select("fields").From(b.Table("cascading_configs")).
		Where(entsql.And(entsql.EQ("directory_id", directoryID), entsql.EQ("parent_field_id", parentFieldID))).
		Query()
	var raw string
	switch err := s.db.QueryRowContext(ctx, q, args...).Scan(&raw); {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying cascading config: %w", err)
	}
	cfg := &Config{DirectoryID: directoryID, ParentFieldID: parentFieldID}
	if err := json.Unmarshal([]byte(raw), &cfg.Fields); err != nil {
		return nil, fmt.Errorf("decoding cascading config: %w", err)
	}
	return cfg, nil
}

func (s *SQLStore) PutConfig(ctx context.Context, cfg Config) error {
	fields := make([]Field, len(cfg.Fields))
	for i, f := range cfg.Fields {
		fields[i] = Field{FieldID: f.FieldID, Name: f.Name, Required: f.Required}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding cascading config: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		b := builder()
		q, args := b.Delete("cascading_configs").
			Where(entsql.And(entsql.EQ("directory_id", cfg.DirectoryID), entsql.EQ("parent_field_id", cfg.ParentFieldID))).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		q, args = b.Insert("cascading_configs").
			Columns("directory_id", "parent_field_id", "fields").
			Values(cfg.DirectoryID, cfg.ParentFieldID, string(raw)).
			Query()
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

func (s *SQLStore) ReplaceSelections(ctx context.Context, directoryID, parentFieldID, parentValue string, sels []Selection) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		b := builder()
		q, args := b.Delete("cascading_selections").
			Where(entsql.And(
				entsql.EQ("directory_id", directoryID),
				entsql.EQ("parent_field_id", parentFieldID),
				entsql.EQ("parent_value", parentValue),
			)).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		if len(sels) == 0 {
			return nil
		}
		ins := b.Insert("cascading_selections").
			Columns("directory_id", "parent_field_id", "parent_value", "position", "field_name", "value")
		for i, sel := range sels {
			ins.Values(directoryID, parentFieldID, parentValue, i, sel.FieldName, sel.Value)
		}
		q, args = ins.Query()
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

func (s *SQLStore) Selections(ctx context.Context, directoryID, parentFieldID, parentValue string) ([]Selection, error) {
	b := builder()
	q, args := b.Select("field_name", "value").From(b.Table("cascading_selections")).
		Where(entsql.And(
			entsql.EQ("directory_id", directoryID),
			entsql.EQ("parent_field_id", parentFieldID),
			entsql.EQ("parent_value", parentValue),
		)).
		OrderBy("position").
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cascading selections: %w", err)
	}
	defer rows.Close()
	out := []Selection{}
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.FieldName, &sel.Value); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReplaceRecordValues(ctx context.Context, recordID string, sels []Selection) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		b := builder()
		q, args := b.Delete("record_cascading_values").Where(entsql.EQ("record_id", recordID)).Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		if len(sels) == 0 {
			return nil
		}
		ins := b.Insert("record_cascading_values").
			Columns("record_id", "position", "field_name", "value", "parent_field", "parent_value")
		for i, sel := range sels {
			ins.Values(recordID, i, sel.FieldName, sel.Value, sel.ParentField, sel.ParentValue)
		}
		q, args = ins.Query()
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

func (s *SQLStore) RecordValues(ctx context.Context, recordID string) ([]Selection, error) {
	b := builder()
	q, args := b.Select("field_name", "value", "parent_field", "parent_value").
		From(b.Table("record_cascading_values")).
		Where(entsql.EQ("record_id", recordID)).
		OrderBy("position").
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying record cascading values: %w", err)
	}
	defer rows.Close()
	out := []Selection{}
	for rows.Next() {
		var sel Selection
		if err := rows.Scan(&sel.FieldName, &sel.Value, &sel.ParentField, &sel.ParentValue); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
