// Package postgres implements internal/store.Store on top of pgx,
// using one pgx.Tx per Session. Opaque blob columns (phase_status,
// qa_results, stats, raw_response) are stored as JSONB and
// marshalled/unmarshalled at the boundary per spec §9's design note.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seoasis/contentforge/internal/store"
)

// Store is a pgx-pool backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool against dsn. The schema in
// schema.sql must already be applied; this package owns no migration
// tooling (spec §1's "schema/ORM definitions... treated as an opaque
// durable store" is out of scope).
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &session{tx: tx}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
