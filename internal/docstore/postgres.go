package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps every collection in a single JSONB table.
type PostgresStore struct {
	db *sqlx.DB
}

type documentRow struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r documentRow) document() Document {
	return Document{ID: r.ID, Data: json.RawMessage(r.Data), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// NewPostgresStore connects to Postgres and applies the documents schema
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args, err := buildListQuery(collection, filters)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = r.document()
	}
	return docs, nil
}

// buildListQuery translates filters into JSONB predicates. Field names are
// bound as parameters, never interpolated.
func buildListQuery(collection string, filters []Filter) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1")
	args := []any{collection}

	for _, f := range filters {
		if err := f.validate(); err != nil {
			return "", nil, err
		}
		value, err := filterValueJSON(f.Value)
		if err != nil {
			return "", nil, err
		}

		fieldArg := len(args) + 1
		valueArg := len(args) + 2
		args = append(args, f.Field, string(value))

		if f.Op == OpEq {
			fmt.Fprintf(&sb, " AND data -> $%d = $%d::jsonb", fieldArg, valueArg)
			continue
		}

		if _, numeric := asNumber(value); numeric {
			fmt.Fprintf(&sb,
				" AND jsonb_typeof(data -> $%d) = 'number' AND (data ->> $%d)::numeric %s ($%d::jsonb #>> '{}')::numeric",
				fieldArg, fieldArg, f.Op, valueArg)
		} else {
			fmt.Fprintf(&sb,
				" AND jsonb_typeof(data -> $%d) = 'string' AND data ->> $%d %s ($%d::jsonb #>> '{}')",
				fieldArg, fieldArg, f.Op, valueArg)
		}
	}

	sb.WriteString(" ORDER BY seq")
	return sb.String(), args, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2",
		collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	doc := row.document()
	return &doc, nil
}

func (s *PostgresStore) Add(ctx context.Context, collection string, data any) (string, error) {
	raw, err := encodeData(data)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)",
		collection, id, string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to add %s document: %w", collection, err)
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	fields, err := encodePartial(partial)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2",
		collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	return err
}
