// Package service holds the loan ledger and its event publisher.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/jmoiron/sqlx"
    "go.uber.org/zap"

    "github.com/iliyamo/library-loans/internal/database"
    "github.com/iliyamo/library-loans/internal/model"
    "github.com/iliyamo/library-loans/internal/queue"
    "github.com/iliyamo/library-loans/internal/repository"
)

var (
    // ErrValidation is returned for malformed ledger requests.
    ErrValidation = errors.New("validation failed")
    // ErrBookUnavailable is returned when the book is already on loan.
    ErrBookUnavailable = errors.New("book not available")
    // ErrNoOpenLoan is returned by a strict return when the book has no
    // open loan.
    ErrNoOpenLoan = errors.New("book has no open loan")
    // ErrLoanHeldByOther is returned by a strict return when the open loan
    // belongs to another user.
    ErrLoanHeldByOther = errors.New("book is on loan to another user")
)

// ReturnPolicy selects how Return treats missing or foreign loans.
type ReturnPolicy string

const (
    // ReturnStrict requires an open loan held by the returning user.
    ReturnStrict ReturnPolicy = "strict"
    // ReturnLenient closes the user's open loan if one exists and marks the
    // book available regardless.
    ReturnLenient ReturnPolicy = "lenient"
)

// ParseReturnPolicy maps a config value onto a policy.  Empty means strict.
func ParseReturnPolicy(s string) (ReturnPolicy, error) {
    switch ReturnPolicy(strings.ToLower(strings.TrimSpace(s))) {
    case "", ReturnStrict:
        return ReturnStrict, nil
    case ReturnLenient:
        return ReturnLenient, nil
    }
    return "", fmt.Errorf("unknown return policy %q", s)
}

// Ledger owns the available flag on books and the borrows table.  Every
// operation runs in one transaction so the two never diverge.
type Ledger struct {
    db        *database.DB
    books     *repository.BookRepo
    loans     *repository.LoanRepo
    policy    ReturnPolicy
    publisher EventPublisher
    log       *zap.Logger
    now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithReturnPolicy sets how Return treats missing or foreign loans.
func WithReturnPolicy(p ReturnPolicy) Option { return func(l *Ledger) { l.policy = p } }

// WithPublisher sets where borrow and return events go after commit.
func WithPublisher(p EventPublisher) Option { return func(l *Ledger) { l.publisher = p } }

// WithLogger sets the logger used for publish failures.
func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }

// WithClock overrides the time source for borrow and return dates.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// NewLedger builds a ledger over db.  Defaults: strict returns, no event
// publishing, no logging.
func NewLedger(db *database.DB, opts ...Option) *Ledger {
    l := &Ledger{
        db:        db,
        books:     repository.NewBookRepo(db),
        loans:     repository.NewLoanRepo(db),
        policy:    ReturnStrict,
        publisher: NopPublisher{},
        log:       zap.NewNop(),
        now:       time.Now,
    }
    for _, opt := range opts {
        opt(l)
    }
    return l
}

// Policy reports the configured return policy.
func (l *Ledger) Policy() ReturnPolicy { return l.policy }

func validateIDs(userID, bookID int64) error {
    if userID <= 0 || bookID <= 0 {
        return fmt.Errorf("%w: user_id and book_id must be positive", ErrValidation)
    }
    return nil
}

// Borrow lends bookID to userID.  The availability flip is a compare-and-swap
// so of two concurrent borrows exactly one wins; the loser gets
// ErrBookUnavailable and no ledger row is written for it.
func (l *Ledger) Borrow(ctx context.Context, userID, bookID int64) (*model.Loan, error) {
    if err := validateIDs(userID, bookID); err != nil {
        return nil, err
    }
    loaned, err := model.StateAvailable.Borrow()
    if err != nil {
        return nil, err
    }
    now := l.now().UTC()
    var loan *model.Loan
    err = l.db.WithTx(ctx, func(tx *sqlx.Tx) error {
        swapped, err := l.books.CompareAndSwapStateTx(ctx, tx, bookID, model.StateAvailable, loaned)
        if err != nil {
            return err
        }
        if !swapped {
            exists, err := l.books.ExistsTx(ctx, tx, bookID)
            if err != nil {
                return err
            }
            if !exists {
                return repository.ErrBookNotFound
            }
            return ErrBookUnavailable
        }
        loan, err = l.loans.CreateTx(ctx, tx, userID, bookID, now)
        if errors.Is(err, repository.ErrLoanExists) {
            return ErrBookUnavailable
        }
        return err
    })
    if err != nil {
        return nil, err
    }
    l.publish(ctx, queue.EventLoanBorrowed, *loan)
    return loan, nil
}

// Return gives bookID back on behalf of userID according to the ledger's
// return policy.  Under the lenient policy the returned loan is nil when
// userID held no open loan for the book.
func (l *Ledger) Return(ctx context.Context, userID, bookID int64) (*model.Loan, error) {
    if err := validateIDs(userID, bookID); err != nil {
        return nil, err
    }
    now := l.now().UTC()
    var loan *model.Loan
    err := l.db.WithTx(ctx, func(tx *sqlx.Tx) error {
        var err error
        if l.policy == ReturnLenient {
            loan, err = l.returnLenientTx(ctx, tx, userID, bookID, now)
        } else {
            loan, err = l.returnStrictTx(ctx, tx, userID, bookID, now)
        }
        return err
    })
    if err != nil {
        return nil, err
    }
    if loan != nil {
        l.publish(ctx, queue.EventLoanReturned, *loan)
    }
    return loan, nil
}

// returnStrictTx only accepts a return that the state machine allows.  A
// book flagged available is rejected even if a stray open row exists for it.
func (l *Ledger) returnStrictTx(ctx context.Context, tx *sqlx.Tx, userID, bookID int64, now time.Time) (*model.Loan, error) {
    state, err := l.books.StateTx(ctx, tx, bookID)
    if err != nil {
        return nil, err
    }
    next, err := state.Return()
    if err != nil {
        return nil, fmt.Errorf("%w: %w", ErrNoOpenLoan, err)
    }
    open, err := l.loans.OpenByBookTx(ctx, tx, bookID)
    if errors.Is(err, repository.ErrLoanNotFound) {
        return nil, ErrNoOpenLoan
    }
    if err != nil {
        return nil, err
    }
    if open.UserID != userID {
        return nil, ErrLoanHeldByOther
    }
    closed, err := l.loans.CloseTx(ctx, tx, open.ID, now)
    if err != nil {
        return nil, err
    }
    if !closed {
        return nil, ErrNoOpenLoan
    }
    if err := l.books.SetStateTx(ctx, tx, bookID, next); err != nil {
        return nil, err
    }
    open.ReturnDate = &now
    return open, nil
}

func (l *Ledger) returnLenientTx(ctx context.Context, tx *sqlx.Tx, userID, bookID int64, now time.Time) (*model.Loan, error) {
    if _, err := l.books.StateTx(ctx, tx, bookID); err != nil {
        return nil, err
    }
    open, err := l.loans.LatestOpenByUserAndBookTx(ctx, tx, userID, bookID)
    switch {
    case errors.Is(err, repository.ErrLoanNotFound):
        open = nil
    case err != nil:
        return nil, err
    default:
        closed, err := l.loans.CloseTx(ctx, tx, open.ID, now)
        if err != nil {
            return nil, err
        }
        if closed {
            open.ReturnDate = &now
        } else {
            open = nil
        }
    }
    if err := l.books.SetStateTx(ctx, tx, bookID, model.StateAvailable); err != nil {
        return nil, err
    }
    return open, nil
}

// ListLoans returns ledger rows, newest first.
func (l *Ledger) ListLoans(ctx context.Context, f repository.LoanFilter) ([]model.Loan, error) {
    return l.loans.List(ctx, f)
}

// publish runs after commit.  Failures are logged and never undo the
// ledger change.
func (l *Ledger) publish(ctx context.Context, eventType string, loan model.Loan) {
    ev := NewLoanEvent(eventType, loan, l.now())
    pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
    defer cancel()
    if err := l.publisher.Publish(pubCtx, ev); err != nil {
        l.log.Warn("publish loan event failed",
            zap.Error(err),
            zap.String("event_type", eventType),
            zap.Int64("loan_id", loan.ID))
    }
}
