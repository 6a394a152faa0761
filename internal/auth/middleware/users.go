package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

const bcryptCost = 12

type User struct {
	Username     string
	PasswordHash string
	Role         string // student | teacher | admin
}

type Users interface {
	Lookup(ctx context.Context, username string) (User, error)
}

// CheckPassword returns the user when password matches its bcrypt hash.
func CheckPassword(ctx context.Context, users Users, username, password string) (User, error) {
	u, err := users.Lookup(ctx, username)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type SQLUsers struct {
	db *sql.DB
}

func NewSQLUsers(db *sql.DB) *SQLUsers { return &SQLUsers{db: db} }

func (s *SQLUsers) Lookup(ctx context.Context, username string) (User, error) {
	u := User{Username: username}
	err := s.db.QueryRowContext(ctx, `SELECT password_hash, role FROM users WHERE username=$1`, username).
		Scan(&u.PasswordHash, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// Upsert stores a user with an already-hashed password.
func (s *SQLUsers) Upsert(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (username,password_hash,role,created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.Username, u.PasswordHash, u.Role, time.Now().UnixMilli())
	return err
}

type MemoryUsers struct {
	mu sync.RWMutex
	m  map[string]User
}

func NewMemoryUsers() *MemoryUsers { return &MemoryUsers{m: map[string]User{}} }

func (s *MemoryUsers) Lookup(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.m[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUsers) Upsert(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[u.Username] = u
	return nil
}
