package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/model"
)

const bookColumns = "id, title, isbn, published_year, quantity, author_id, available"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// BookRepo provides catalog access to the books table plus the
// transactional state updates used by the loan ledger.
type BookRepo struct {
	db *database.DB
}

// NewBookRepo returns a new BookRepo bound to the given database.
func NewBookRepo(db *database.DB) *BookRepo { return &BookRepo{db: db} }

// BookFilter narrows List.  Zero values disable a filter.
type BookFilter struct {
	Title     string // case-insensitive literal substring of the title
	AuthorID  int64
	Available *bool
}

// Create inserts a book for an existing author.  New books always start
// available regardless of the caller's Available field, and a missing
// quantity defaults to one.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	if b.Quantity <= 0 {
		b.Quantity = 1
	}
	b.Available = true
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind("SELECT COUNT(*) FROM authors WHERE id = ?"), b.AuthorID)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrAuthorNotFound
		}
		id, err := r.db.Insert(ctx, tx,
			"INSERT INTO books (title, isbn, published_year, quantity, author_id, available) VALUES (?, ?, ?, ?, ?, ?)",
			b.Title, b.ISBN, b.PublishedYear, b.Quantity, b.AuthorID, b.Available)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrAuthorNotFound
			}
			return err
		}
		b.ID = id
		return nil
	})
}

// GetByID fetches the bare book row.
func (r *BookRepo) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	var b model.Book
	if err := r.db.GetContext(ctx, &b, r.db.Rebind("SELECT "+bookColumns+" FROM books WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetDetail returns a book with its author nested.
func (r *BookRepo) GetDetail(ctx context.Context, id int64) (*model.BookDetail, error) {
	const q = `SELECT b.id, b.title, b.isbn, b.published_year, b.quantity, b.author_id, b.available,
	                  a.name AS author_name, a.bio AS author_bio
	           FROM books b
	           JOIN authors a ON a.id = b.author_id
	           WHERE b.id = ?`
	var row struct {
		model.Book
		AuthorName string `db:"author_name"`
		AuthorBio  string `db:"author_bio"`
	}
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(q), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &model.BookDetail{
		Book:   row.Book,
		State:  row.Book.State(),
		Author: model.Author{ID: row.AuthorID, Name: row.AuthorName, Bio: row.AuthorBio},
	}, nil
}

// List returns books joined with their author's name, ordered by id.
func (r *BookRepo) List(ctx context.Context, f BookFilter) ([]model.BookListItem, error) {
	ds := r.db.Goqu().
		From(goqu.T("books").As("b")).
		Join(goqu.T("authors").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Select(
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.isbn"), goqu.I("b.published_year"),
			goqu.I("b.quantity"), goqu.I("b.author_id"), goqu.I("b.available"),
			goqu.I("a.name").As("author_name"),
		).
		Order(goqu.I("b.id").Asc()).
		Prepared(true)
	if f.Title != "" {
		// '!' escapes wildcards the same way on every supported dialect
		pattern := "%" + likeEscaper.Replace(strings.ToLower(f.Title)) + "%"
		ds = ds.Where(goqu.L("LOWER(b.title) LIKE ? ESCAPE '!'", pattern))
	}
	if f.AuthorID > 0 {
		ds = ds.Where(goqu.I("b.author_id").Eq(f.AuthorID))
	}
	if f.Available != nil {
		// Eq on a bool renders IS TRUE/FALSE, which not every dialect accepts with a placeholder
		ds = ds.Where(goqu.L("b.available = ?", *f.Available))
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	out := []model.BookListItem{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a book that never appeared in the ledger.  A borrowed book
// yields ErrBookOnLoan; a book with only closed loans yields
// ErrBookHasHistory so the loan history is never orphaned.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := r.existsTx(ctx, tx, id); err != nil {
			return err
		}
		var open, total int
		err := tx.QueryRowxContext(ctx,
			tx.Rebind("SELECT COUNT(*), COALESCE(SUM(CASE WHEN return_date IS NULL THEN 1 ELSE 0 END), 0) FROM borrows WHERE book_id = ?"),
			id).Scan(&total, &open)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrBookOnLoan
		}
		if total > 0 {
			return ErrBookHasHistory
		}
		_, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM books WHERE id = ?"), id)
		return err
	})
}

// ExistsTx reports whether the book exists, as seen by tx.
func (r *BookRepo) ExistsTx(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error) {
	_, err := r.existsTx(ctx, tx, id)
	if errors.Is(err, ErrBookNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *BookRepo) existsTx(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error) {
	var one int
	if err := tx.GetContext(ctx, &one, tx.Rebind("SELECT 1 FROM books WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrBookNotFound
		}
		return false, err
	}
	return true, nil
}

// CompareAndSwapStateTx moves a book from one loan state to another only if
// it is currently in from.  The precondition lives in the UPDATE's WHERE
// clause, so of two racing transactions exactly one sees an affected row.
func (r *BookRepo) CompareAndSwapStateTx(ctx context.Context, tx *sqlx.Tx, id int64, from, to model.LoanState) (bool, error) {
	res, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE books SET available = ? WHERE id = ? AND available = ?"),
		to.Available(), id, from.Available())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetStateTx forces a book into state.  It reports ErrBookNotFound when the
// row does not exist.
func (r *BookRepo) SetStateTx(ctx context.Context, tx *sqlx.Tx, id int64, state model.LoanState) error {
	if _, err := r.existsTx(ctx, tx, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind("UPDATE books SET available = ? WHERE id = ?"), state.Available(), id)
	return err
}

// StateTx reads the current loan state of a book inside tx.
func (r *BookRepo) StateTx(ctx context.Context, tx *sqlx.Tx, id int64) (model.LoanState, error) {
	var available bool
	if err := tx.GetContext(ctx, &available, tx.Rebind("SELECT available FROM books WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StateAvailable, ErrBookNotFound
		}
		return model.StateAvailable, err
	}
	return model.StateFromAvailable(available), nil
}
