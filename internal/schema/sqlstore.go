package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// SQLStore persists directory definitions created at runtime. Fields are
// stored as a JSON document next to the directory row.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts or replaces a directory definition.
func (s *SQLStore) Save(ctx context.Context, d *Directory) error {
	fields, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	b := entsql.Dialect(dialect.SQLite)

	del, delArgs := b.Delete("directories").Where(entsql.EQ("id", d.ID)).Query()
	ins, insArgs := b.Insert("directories").
		Columns("id", "name", "icon", "directory_type", "fields").
		Values(d.ID, d.Name, d.Icon, string(d.Type), string(fields)).
		Query()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("deleting directory %s: %w", d.ID, err)
	}
	if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
		return fmt.Errorf("inserting directory %s: %w", d.ID, err)
	}
	return tx.Commit()
}

// LoadAll returns every stored directory ordered by name.
func (s *SQLStore) LoadAll(ctx context.Context) ([]*Directory, error) {
	q, args := entsql.Dialect(dialect.SQLite).
		Select("id", "name", "icon", "directory_type", "fields").
		From(entsql.Table("directories")).
		OrderBy("name").
		Query()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying directories: %w", err)
	}
	defer rows.Close()

	var dirs []*Directory
	for rows.Next() {
		var (
			d      Directory
			typ    string
			fields string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Icon, &typ, &fields); err != nil {
			return nil, fmt.Errorf("scanning directory: %w", err)
		}
		d.Type = DirectoryType(typ)
		if err := json.Unmarshal([]byte(fields), &d.Fields); err != nil {
			return nil, fmt.Errorf("decoding fields of %s: %w", d.ID, err)
		}
		dirs = append(dirs, &d)
	}
	return dirs, rows.Err()
}
