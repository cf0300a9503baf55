package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/famshop/internal/domain"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) Create(ctx context.Context, name string) (*domain.Family, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO families (id, name, created_at) VALUES (?, ?, ?)
	`, id, name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id string) (*domain.Family, error) {
	f := &domain.Family{}
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM families WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if f.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return f, nil
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, familyID, email string, role domain.Role) (*domain.User, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, family_id, email, role, created_at) VALUES (?, ?, ?, ?, ?)
	`, id, familyID, email, string(role), formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getOne(ctx, `
		SELECT id, family_id, email, role, created_at FROM users WHERE id = ?
	`, id)
}

// FindMember returns the user only when it belongs to familyID.
func (s *UserStore) FindMember(ctx context.Context, userID, familyID string) (*domain.User, error) {
	return s.getOne(ctx, `
		SELECT id, family_id, email, role, created_at FROM users WHERE id = ? AND family_id = ?
	`, userID, familyID)
}

func (s *UserStore) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u := &domain.User{}
	var role, created string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.FamilyID, &u.Email, &role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = domain.Role(role)
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return u, nil
}
