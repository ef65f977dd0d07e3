package store

import (
	"context"
	"database/sql"
)

// UpsertUser creates the user or refreshes password hash and role for an
// existing username. The stored id wins on conflict.
func (s *SQLStore) UpsertUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = "teacher"
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users
		(id, username, password_hash, role, full_name, institution, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.ID, u.Username, u.PasswordHash, u.Role, strArg(u.FullName), strArg(u.Institution), ms(now))
	if err != nil {
		return err
	}
	got, err := s.GetUserByUsername(ctx, u.Username)
	if err != nil {
		return err
	}
	*u = got
	return nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	var full, inst sql.NullString
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, role, full_name, institution, created_at
		FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &full, &inst, &at)
	if err != nil {
		return User{}, notFound(err)
	}
	u.FullName, u.Institution = nullStr(full), nullStr(inst)
	u.CreatedAt = fromMS(at)
	return u, nil
}

// UserRole resolves a token subject to the stored role. Subjects may be a
// user id or, for locally issued dev tokens, a username.
func (s *SQLStore) UserRole(ctx context.Context, sub string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
	if err != nil {
		return "", notFound(err)
	}
	return role, nil
}
