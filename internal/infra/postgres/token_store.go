package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TokenStore keeps session keys in the client_sessions table, one row per
// (namespace, key). Namespaces let several client profiles share a database.
type TokenStore struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewTokenStore(pool *pgxpool.Pool, namespace string) *TokenStore {
	if namespace == "" {
		namespace = "default"
	}
	return &TokenStore{pool: pool, namespace: namespace}
}

func (s *TokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM client_sessions WHERE namespace=$1 AND key=$2`,
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load session key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *TokenStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_sessions (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (namespace, key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
		s.namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("store session key %s: %w", key, err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM client_sessions WHERE namespace=$1 AND key = ANY($2)`,
		s.namespace, keys,
	)
	if err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}
