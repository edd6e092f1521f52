package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrQueryNotFound is returned when a query id is unknown.
var ErrQueryNotFound = errors.New("query not found")

// Query is a compiled plan as persisted.
type Query struct {
	Seq             int64  `json:"seq"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Fingerprint     string `json:"fingerprint"`
	Document        string `json:"document"`
	Topology        string `json:"topology"`
	CompilerVersion string `json:"compiler_version"`

	// CatalogHash fingerprints the streams the plan was compiled against.
	// Empty for queries saved before it was recorded.
	CatalogHash string `json:"catalog_hash,omitempty"`
}

// SaveQuery stores a compiled query. Returns the stored id and whether a new
// record was inserted.
//
// Queries are unique by fingerprint: saving a plan that is already stored
// leaves the existing record untouched and returns its id with
// inserted=false.
func (s *Store) SaveQuery(ctx context.Context, q Query) (id string, inserted bool, err error) {
	if q.ID == "" || q.Fingerprint == "" {
		return "", false, fmt.Errorf("save query: id and fingerprint are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("save query: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO queries
		(id, name, plan_hash, document, topology, compiler_version, catalog_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_hash) DO NOTHING
	`,
		q.ID,
		q.Name,
		q.Fingerprint,
		q.Document,
		q.Topology,
		q.CompilerVersion,
		q.CatalogHash,
	)
	if err != nil {
		return "", false, fmt.Errorf("save query: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("save query: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, inserted = q.ID, true
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM queries WHERE plan_hash = ?
		`, q.Fingerprint).Scan(&id)
		if err != nil {
			return "", false, fmt.Errorf("save query: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("save query: commit: %w", err)
	}
	return id, inserted, nil
}

// GetQuery returns a query by id, or ErrQueryNotFound.
func (s *Store) GetQuery(ctx context.Context, id string) (Query, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, name, plan_hash, document, topology, compiler_version, catalog_hash
		FROM queries
		WHERE id = ?
	`, id)

	q, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Query{}, fmt.Errorf("%w: %s", ErrQueryNotFound, id)
	}
	if err != nil {
		return Query{}, fmt.Errorf("get query %s: %w", id, err)
	}
	return q, nil
}

// ListQueries returns stored queries in insertion order. A non-empty name
// restricts the listing to queries with that name.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListQueries(ctx context.Context, name string) ([]Query, error) {
	query := `
		SELECT seq, id, name, plan_hash, document, topology, compiler_version, catalog_hash
		FROM queries
	`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queries: %w", err)
	}
	defer rows.Close()

	queries := []Query{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return queries, nil
}

// DeleteQuery removes a query by id, or returns ErrQueryNotFound.
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrQueryNotFound, id)
	}
	return nil
}

func scanQuery(row rowScanner) (Query, error) {
	var q Query
	err := row.Scan(&q.Seq, &q.ID, &q.Name, &q.Fingerprint, &q.Document, &q.Topology, &q.CompilerVersion, &q.CatalogHash)
	return q, err
}
