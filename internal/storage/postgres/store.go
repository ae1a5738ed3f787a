// Package postgres implements the Directory and TokenStore against the
// school's Supabase Postgres. The connection uses the service-role
// credential, so lookups bypass row-level security.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool against the Supabase connection URL and fails fast
// if the database is unreachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// Store reads the existing product tables: alumnos(grupo_id, tutor_id),
// grupos(id, escuela_id) and push_tokens(user_id, token).
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// --- Directory ---

func (s *Store) GuardiansByGroup(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT tutor_id
		FROM alumnos
		WHERE grupo_id = $1 AND tutor_id IS NOT NULL
	`, groupID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

func (s *Store) GroupIDsBySchool(ctx context.Context, schoolID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM grupos
		WHERE escuela_id = $1
	`, schoolID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

func (s *Store) GuardiansByGroups(ctx context.Context, groupIDs []string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT tutor_id
		FROM alumnos
		WHERE grupo_id = ANY($1) AND tutor_id IS NOT NULL
	`, groupIDs)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

// --- TokenStore ---

func (s *Store) TokensForUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, token
		FROM push_tokens
		WHERE user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, err
	}
	return collectTokens(rows)
}

// RegisterToken upserts on the token column: a token re-registered from a
// different account moves to the new user, matching the parent app's
// onConflict behavior.
func (s *Store) RegisterToken(ctx context.Context, userID, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO push_tokens (user_id, token)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id
	`, userID, token)
	return err
}

func (s *Store) UnregisterToken(ctx context.Context, userID, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM push_tokens
		WHERE user_id = $1 AND token = $2
	`, userID, token)
	return err
}

// --- Helpers ---

type stringRows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

func collectStrings(rows stringRows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// collectTokens groups (user_id, token) rows into a per-user token list.
func collectTokens(rows stringRows) (map[string][]string, error) {
	defer rows.Close()

	tokens := make(map[string][]string)
	for rows.Next() {
		var userID, token string
		if err := rows.Scan(&userID, &token); err != nil {
			return nil, err
		}
		tokens[userID] = append(tokens[userID], token)
	}
	return tokens, rows.Err()
}
