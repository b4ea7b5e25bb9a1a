package storage

import (
	"context"
	"fmt"
	"strings"

	"ikpa/internal/core"
)

const userColumns = "id, email, name, password_hash, currency, country, created_at"

func scanUser(row scanner) (core.User, error) {
	var u core.User
	var currency string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &currency, &u.Country, &u.CreatedAt); err != nil {
		return core.User{}, notFound(err)
	}
	u.Currency = core.Currency(currency)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// CreateUser stores u and sets its ID. A duplicate email is ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = ts(u.CreatedAt)
	id, err := s.insert(ctx, s.db,
		`INSERT INTO users (email, name, password_hash, currency, country, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Email, u.Name, u.PasswordHash, string(u.Currency), u.Country, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	return scanUser(s.queryRow(ctx, s.db, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(s.queryRow(ctx, s.db, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// ListUserIDs returns every user ID in ascending order. Batch jobs fan out
// over it.
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.query(ctx, s.db, "SELECT id FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
