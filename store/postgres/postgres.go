// Package postgres stores documents as JSONB rows. Unique indexes are rows
// in a side table whose primary key turns collisions into SQLSTATE 23505,
// which is reported as store.ErrDuplicateKey.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/postgres/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// Store implements store.Store over database/sql with the pgx driver.
type Store struct {
	db     *sql.DB
	schema store.Schema
}

// Open connects with the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func New(db *sql.DB, schema store.Schema) *Store {
	return &Store{db: db, schema: schema}
}

func (s *Store) GetByID(ctx context.Context, coll, id string) (store.Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		coll, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, nil
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("db error: %w", err)
	}
	return store.Document{ID: id, Data: data}, nil
}

func (s *Store) FindOne(ctx context.Context, coll string, filter store.Filter) (store.Document, error) {
	docs, err := s.query(ctx, coll, filter, 1)
	if err != nil || len(docs) == 0 {
		return store.Document{}, err
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, coll string, filter store.Filter) ([]store.Document, error) {
	return s.query(ctx, coll, filter, 0)
}

func (s *Store) Count(ctx context.Context, coll string, filter store.Filter, max int) (int, error) {
	where, args := whereClause(coll, filter)
	q := `SELECT count(*) FROM documents WHERE ` + where
	if max > 0 {
		q = `SELECT count(*) FROM (SELECT 1 FROM documents WHERE ` + where + fmt.Sprintf(` LIMIT %d) AS capped`, max)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, coll string, filter store.Filter, limit int) ([]store.Document, error) {
	where, args := whereClause(coll, filter)
	q := `SELECT id, data FROM documents WHERE ` + where + ` ORDER BY seq`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var d store.Document
		var data []byte
		if err := rows.Scan(&d.ID, &data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.Data = data
		out = append(out, d)
	}
	return out, rows.Err()
}

// whereClause renders filter keys in sorted order so generated SQL is stable.
// Field names are bound as parameters, never interpolated.
func whereClause(coll string, filter store.Filter) (string, []any) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{"collection = $1"}
	args := []any{coll}
	for _, k := range keys {
		n := len(args)
		if filter[k] == "" {
			parts = append(parts, fmt.Sprintf("COALESCE(data->>$%d, '') = $%d", n+1, n+2))
		} else {
			parts = append(parts, fmt.Sprintf("data->>$%d = $%d", n+1, n+2))
		}
		args = append(args, k, filter[k])
	}
	return strings.Join(parts, " AND "), args
}

func (s *Store) Create(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	if doc.ID == "" {
		return store.Document{}, errors.New("postgres: document id required")
	}
	keys, err := s.schema.UniqueKeys(coll, doc.Data)
	if err != nil {
		return store.Document{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
			coll, doc.ID, []byte(doc.Data),
		); err != nil {
			return err
		}
		return insertKeys(ctx, tx, coll, doc.ID, keys)
	})
	if err != nil {
		return store.Document{}, mapErr(err)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	keys, err := s.schema.UniqueKeys(coll, doc.Data)
	if err != nil {
		return store.Document{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
			coll, doc.ID, []byte(doc.Data),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM unique_keys WHERE collection = $1 AND doc_id = $2`,
			coll, doc.ID,
		); err != nil {
			return err
		}
		return insertKeys(ctx, tx, coll, doc.ID, keys)
	})
	if err != nil {
		return store.Document{}, mapErr(err)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM unique_keys WHERE collection = $1 AND doc_id = $2`,
			coll, id,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			coll, id,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, mapErr(err)
	}
	return deleted, nil
}

// Invalidate is a no-op; every read hits the database.
func (s *Store) Invalidate(context.Context, string, string) error { return nil }

func insertKeys(ctx context.Context, tx *sql.Tx, coll, id string, keys map[string]string) error {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unique_keys (collection, index_name, value, doc_id) VALUES ($1, $2, $3, $4)`,
			coll, name, keys[name], id,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return store.ErrDuplicateKey
	case errors.Is(err, store.ErrNotFound):
		return err
	}
	return fmt.Errorf("db error: %w", err)
}
