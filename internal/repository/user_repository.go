package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/model"
	"github.com/iliyamo/library-loans/internal/utils"
)

const userColumns = "id, username, password_hash, role"

type UserRepo struct{ db *database.DB }

func NewUserRepo(db *database.DB) *UserRepo { return &UserRepo{db: db} }

// Create hashes password, inserts the user and returns it.
func (r *UserRepo) Create(ctx context.Context, username, password, role string, cost int) (*model.User, error) {
	username = strings.TrimSpace(username)
	if !model.ValidRole(role) {
		role = model.RoleMember
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	id, err := r.db.Insert(ctx, r.db,
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, hash, role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &model.User{ID: id, Username: username, PasswordHash: hash, Role: role}, nil
}

// GetByUsername fetches a user by trimmed username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", strings.TrimSpace(username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (r *UserRepo) get(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
