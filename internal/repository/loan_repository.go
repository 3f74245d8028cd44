package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/model"
)

const loanColumns = "id, user_id, book_id, borrow_date, return_date"

// LoanRepo reads and writes the borrows ledger.  Rows are inserted on
// borrow and closed once on return; they are never deleted.
type LoanRepo struct {
	db *database.DB
}

// NewLoanRepo returns a LoanRepo bound to db.
func NewLoanRepo(db *database.DB) *LoanRepo { return &LoanRepo{db: db} }

// LoanFilter narrows List.  Zero values disable a filter.
type LoanFilter struct {
	UserID   int64
	BookID   int64
	OpenOnly bool
}

// CreateTx opens a loan inside tx.  A unique violation means another open
// loan for the book already exists; a foreign key violation means the user
// or book row is missing.
func (r *LoanRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, userID, bookID int64, at time.Time) (*model.Loan, error) {
	at = at.UTC()
	id, err := r.db.Insert(ctx, tx,
		"INSERT INTO borrows (user_id, book_id, borrow_date, return_date) VALUES (?, ?, ?, NULL)",
		userID, bookID, at)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return nil, ErrLoanExists
		case database.IsForeignKeyViolation(err):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &model.Loan{ID: id, UserID: userID, BookID: bookID, BorrowDate: at}, nil
}

// OpenByBookTx returns the open loan for a book, or ErrLoanNotFound.
func (r *LoanRepo) OpenByBookTx(ctx context.Context, tx *sqlx.Tx, bookID int64) (*model.Loan, error) {
	return r.getTx(ctx, tx,
		"SELECT "+loanColumns+" FROM borrows WHERE book_id = ? AND return_date IS NULL ORDER BY id DESC LIMIT 1",
		bookID)
}

// LatestOpenByUserAndBookTx returns the most recent open loan of bookID held
// by userID, or ErrLoanNotFound.
func (r *LoanRepo) LatestOpenByUserAndBookTx(ctx context.Context, tx *sqlx.Tx, userID, bookID int64) (*model.Loan, error) {
	return r.getTx(ctx, tx,
		"SELECT "+loanColumns+" FROM borrows WHERE user_id = ? AND book_id = ? AND return_date IS NULL ORDER BY borrow_date DESC, id DESC LIMIT 1",
		userID, bookID)
}

func (r *LoanRepo) getTx(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (*model.Loan, error) {
	var l model.Loan
	if err := tx.GetContext(ctx, &l, tx.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

// CloseTx sets return_date on an open loan.  It reports false when the loan
// was already closed, so a row is never closed twice.
func (r *LoanRepo) CloseTx(ctx context.Context, tx *sqlx.Tx, id int64, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE borrows SET return_date = ? WHERE id = ? AND return_date IS NULL"),
		at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID fetches a single ledger row.
func (r *LoanRepo) GetByID(ctx context.Context, id int64) (*model.Loan, error) {
	var l model.Loan
	if err := r.db.GetContext(ctx, &l, r.db.Rebind("SELECT "+loanColumns+" FROM borrows WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

// List returns ledger rows newest first.
func (r *LoanRepo) List(ctx context.Context, f LoanFilter) ([]model.Loan, error) {
	ds := r.db.Goqu().
		From("borrows").
		Select("id", "user_id", "book_id", "borrow_date", "return_date").
		Order(goqu.C("borrow_date").Desc(), goqu.C("id").Desc()).
		Prepared(true)
	if f.UserID > 0 {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID))
	}
	if f.BookID > 0 {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.OpenOnly {
		ds = ds.Where(goqu.C("return_date").IsNull())
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	out := []model.Loan{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// CountOpen returns the number of open loans for a book.  It backs the
// available/open-loan consistency check.
func (r *LoanRepo) CountOpen(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		r.db.Rebind("SELECT COUNT(*) FROM borrows WHERE book_id = ? AND return_date IS NULL"), bookID)
	return n, err
}
