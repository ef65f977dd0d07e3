package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Jayanthmurala/EduAssist/internal/rbac"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type UserUpserter interface {
	UpsertUser(ctx context.Context, u *store.User) error
}

// SeedAdmin ensures the configured admin account exists with the given
// bcrypt hash.
func SeedAdmin(ctx context.Context, users UserUpserter, username, passHash string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passHash == "" {
		return store.User{}, errors.New("admin username and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(passHash)); err != nil {
		return store.User{}, fmt.Errorf("ADMIN_PASS_HASH is not a bcrypt hash: %w", err)
	}
	u := store.User{Username: username, PasswordHash: passHash, Role: rbac.RoleAdmin}
	if err := users.UpsertUser(ctx, &u); err != nil {
		return store.User{}, err
	}
	return u, nil
}

// HashPassword returns a bcrypt hash at the default cost.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
