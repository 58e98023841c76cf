package auth

import (
	"context"
	"database/sql"
	"errors"
)

// Account is the login view of a person row.
type Account struct {
	ID           int64
	FullName     string
	Kind         string
	Active       bool
	PasswordHash string
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	const q = `
SELECT id, full_name, kind, active, password_hash
FROM people
WHERE email = ?
LIMIT 1
`
	var a Account
	err := s.db.QueryRowContext(ctx, q, email).Scan(
		&a.ID,
		&a.FullName,
		&a.Kind,
		&a.Active,
		&a.PasswordHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
