package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cascadehq/cascade/libs/db"
)

// PgCollection stores documents as JSONB rows, one table per collection.
// Filters translate to the @> containment operator, so array membership
// queries are served by the database.
type PgCollection struct {
	pool  *db.Pool
	table string
}

func NewPgCollection(pool *db.Pool, table string) *PgCollection {
	return &PgCollection{pool: pool, table: table}
}

// EnsureSchema creates the backing table and containment index if missing.
// Called once at service startup.
func (c *PgCollection) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			doc jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)
	`, c.table))
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_doc_idx ON %s USING gin (doc jsonb_path_ops)`,
		c.table, c.table))
	return err
}

func (c *PgCollection) FindByID(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, c.table), id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

func (c *PgCollection) Find(ctx context.Context, filters ...Filter) ([]map[string]any, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s`, c.table)
	var args []any
	if len(filters) > 0 {
		var clauses []string
		for _, f := range filters {
			raw, err := json.Marshal(f)
			if err != nil {
				return nil, err
			}
			args = append(args, raw)
			clauses = append(clauses, fmt.Sprintf("doc @> $%d::jsonb", len(args)))
		}
		query += " WHERE " + strings.Join(clauses, " OR ")
	}
	query += " ORDER BY created_at"

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *PgCollection) Create(ctx context.Context, id string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, c.table),
		id, raw)
	return err
}

func (c *PgCollection) UpdateByID(ctx context.Context, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1`, c.table),
		id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *PgCollection) UpdateMany(ctx context.Context, filter Filter, patch map[string]any) (int64, error) {
	filterRaw, err := json.Marshal(filter)
	if err != nil {
		return 0, err
	}
	patchRaw, err := json.Marshal(patch)
	if err != nil {
		return 0, err
	}
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = doc || $2::jsonb WHERE doc @> $1::jsonb`, c.table),
		filterRaw, patchRaw)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *PgCollection) DeleteByID(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *PgCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return 0, err
	}
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE doc @> $1::jsonb`, c.table), raw)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func decodeDoc(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

var _ Collection = (*PgCollection)(nil)
