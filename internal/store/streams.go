package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/schema"
)

// Origin records how a stream came to exist.
type Origin string

const (
	OriginDeclared Origin = "declared"
	OriginSink     Origin = "sink"
)

// PutStream inserts or replaces a declared stream.
func (s *Store) PutStream(ctx context.Context, spec *catalog.StreamSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("put stream: %w", err)
	}
	fields, err := marshalFields(spec.Schema)
	if err != nil {
		return fmt.Errorf("put stream: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO streams (name, fields, key_field, type, partitions, origin)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			fields = excluded.fields,
			key_field = excluded.key_field,
			type = excluded.type,
			partitions = excluded.partitions,
			origin = excluded.origin
	`,
		spec.Name,
		fields,
		spec.KeyField,
		string(spec.Type),
		spec.Partitions,
		string(OriginDeclared),
	)
	if err != nil {
		return fmt.Errorf("put stream: %w", err)
	}
	return nil
}

// ImportCatalog stores every stream of c in one transaction.
func (s *Store) ImportCatalog(ctx context.Context, c *catalog.Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import catalog: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, spec := range c.Streams() {
		fields, err := marshalFields(spec.Schema)
		if err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO streams (name, fields, key_field, type, partitions, origin)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				fields = excluded.fields,
				key_field = excluded.key_field,
				type = excluded.type,
				partitions = excluded.partitions
		`, spec.Name, fields, spec.KeyField, string(spec.Type), spec.Partitions, string(OriginDeclared))
		if err != nil {
			return fmt.Errorf("import catalog: stream %s: %w", spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import catalog: commit: %w", err)
	}
	return nil
}

// createSink inserts a destination stream. It fails if the name is taken.
func (s *Store) createSink(ctx context.Context, name string, sch *schema.Schema, partitions int) error {
	spec := &catalog.StreamSpec{Name: name, Schema: sch, Type: plan.Stream, Partitions: partitions}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	fields, err := marshalFields(sch)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO streams (name, fields, key_field, type, partitions, origin)
		VALUES (?, ?, '', ?, ?, ?)
	`, name, fields, string(plan.Stream), partitions, string(OriginSink))
	if err != nil {
		return fmt.Errorf("create destination %s: %w", name, err)
	}
	return nil
}

// GetStream returns a stream by name. The bool is false if it does not exist.
func (s *Store) GetStream(ctx context.Context, name string) (*catalog.StreamSpec, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, fields, key_field, type, partitions
		FROM streams
		WHERE name = ?
	`, name)

	spec, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get stream %s: %w", name, err)
	}
	return spec, true, nil
}

// ListStreams returns every stream ordered by name.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListStreams(ctx context.Context) ([]*catalog.StreamSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, fields, key_field, type, partitions
		FROM streams
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	streams := []*catalog.StreamSpec{}
	for rows.Next() {
		spec, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

// ListStreamsByOrigin returns the streams with the given origin, ordered by
// name. Returns an empty slice (not nil) if there are none.
func (s *Store) ListStreamsByOrigin(ctx context.Context, origin Origin) ([]*catalog.StreamSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, fields, key_field, type, partitions
		FROM streams
		WHERE origin = ?
		ORDER BY name COLLATE BINARY ASC
	`, string(origin))
	if err != nil {
		return nil, fmt.Errorf("query %s streams: %w", origin, err)
	}
	defer rows.Close()

	streams := []*catalog.StreamSpec{}
	for rows.Next() {
		spec, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s streams: %w", origin, err)
	}
	return streams, nil
}

// LoadCatalog reads every stream into an in-memory catalog.
func (s *Store) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	streams, err := s.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(streams...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*catalog.StreamSpec, error) {
	var (
		spec       catalog.StreamSpec
		fields     string
		outputType string
	)
	if err := row.Scan(&spec.Name, &fields, &spec.KeyField, &outputType, &spec.Partitions); err != nil {
		return nil, err
	}
	sch, err := unmarshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", spec.Name, err)
	}
	spec.Schema = sch
	spec.Type = plan.OutputType(outputType)
	return &spec, nil
}

// Streams adapts the store to the planner's oracle and destination
// catalog interfaces. Every call runs under the context it was created with.
type Streams struct {
	ctx   context.Context
	store *Store
}

var (
	_ plan.PartitionOracle    = (*Streams)(nil)
	_ plan.DestinationCatalog = (*Streams)(nil)
)

// Streams returns an oracle and destination catalog bound to ctx.
func (s *Store) Streams(ctx context.Context) *Streams {
	return &Streams{ctx: ctx, store: s}
}

func (a *Streams) PartitionCount(stream string) (int, error) {
	spec, ok, err := a.store.GetStream(a.ctx, stream)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", plan.ErrStreamNotFound, stream)
	}
	return spec.Partitions, nil
}

func (a *Streams) Destination(name string) (*schema.Schema, bool, error) {
	spec, ok, err := a.store.GetStream(a.ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	return spec.Schema, true, nil
}

func (a *Streams) CreateDestination(name string, s *schema.Schema, partitions int) error {
	return a.store.createSink(a.ctx, name, s, partitions)
}
