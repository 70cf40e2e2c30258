package memstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/repository"
	"github.com/courtbook/court-booking/internal/utils"
)

// UserStore keeps users and refresh tokens in memory for the memory
// store driver.  It mirrors the sentinel behavior of the MySQL
// repositories (sql.ErrNoRows for missing rows, repository.ErrEmailExists
// for duplicates) so the auth handlers work unchanged against it.
type UserStore struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
	byMail map[string]uint64
	tokens map[string]refreshToken
}

type refreshToken struct {
	userID    uint64
	expiresAt time.Time
	revoked   bool
}

// NewUserStore returns an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:   make(map[uint64]model.User),
		byMail: make(map[string]uint64),
		tokens: make(map[string]refreshToken),
	}
}

// Create hashes the password and stores the user.
func (s *UserStore) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byMail[email]; exists {
		return 0, repository.ErrEmailExists
	}
	s.nextID++
	now := time.Now().UTC()
	u := model.User{
		ID: s.nextID, Name: name, Email: email, PasswordHash: hash,
		Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	s.byID[u.ID] = u
	s.byMail[email] = u.ID
	return u.ID, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMail[email]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return s.byID[id], nil
}

func (s *UserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

// StoreRefresh records a refresh token hash.
func (s *UserStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = refreshToken{userID: userID, expiresAt: exp}
	return nil
}

// ValidateRefresh returns the owning user of a live token hash.
func (s *UserStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.revoked || time.Now().UTC().After(t.expiresAt) {
		return 0, sql.ErrNoRows
	}
	return t.userID, nil
}

// RevokeByHash marks one token as revoked.
func (s *UserStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok {
		t.revoked = true
		s.tokens[tokenHash] = t
	}
	return nil
}

// RevokeAllForUser revokes every token belonging to the user.
func (s *UserStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.tokens {
		if t.userID == userID {
			t.revoked = true
			s.tokens[hash] = t
		}
	}
	return nil
}
