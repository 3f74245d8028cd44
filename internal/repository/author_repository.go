package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/model"
)

// AuthorRepo encapsulates all queries against the authors table.
type AuthorRepo struct {
	db *database.DB
}

// NewAuthorRepo constructs an AuthorRepo with the provided DB handle.
func NewAuthorRepo(db *database.DB) *AuthorRepo { return &AuthorRepo{db: db} }

// Create inserts a new author and fills in its generated ID.
func (r *AuthorRepo) Create(ctx context.Context, a *model.Author) error {
	id, err := r.db.Insert(ctx, r.db, "INSERT INTO authors (name, bio) VALUES (?, ?)", a.Name, a.Bio)
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// GetByID fetches an author by id.  ErrAuthorNotFound is returned when no
// row exists.
func (r *AuthorRepo) GetByID(ctx context.Context, id int64) (*model.Author, error) {
	return r.get(ctx, r.db, id)
}

func (r *AuthorRepo) get(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.Author, error) {
	var a model.Author
	if err := sqlx.GetContext(ctx, q, &a, r.db.Rebind("SELECT id, name, bio FROM authors WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthorNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List returns all authors ordered by id.
func (r *AuthorRepo) List(ctx context.Context) ([]model.Author, error) {
	out := []model.Author{}
	if err := r.db.SelectContext(ctx, &out, "SELECT id, name, bio FROM authors ORDER BY id"); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an author that has no books.  Authors with books are
// rejected with ErrAuthorHasBooks rather than cascading or orphaning them.
func (r *AuthorRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.get(ctx, tx, id); err != nil {
			return err
		}
		var books int
		if err := tx.GetContext(ctx, &books, tx.Rebind("SELECT COUNT(*) FROM books WHERE author_id = ?"), id); err != nil {
			return err
		}
		if books > 0 {
			return ErrAuthorHasBooks
		}
		_, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM authors WHERE id = ?"), id)
		return err
	})
}
