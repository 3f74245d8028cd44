package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/model"
	"github.com/iliyamo/library-loans/internal/queue"
	"github.com/iliyamo/library-loans/internal/repository"
	"github.com/iliyamo/library-loans/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.LoanEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.LoanEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

type env struct {
	db    *database.DB
	books *repository.BookRepo
	loans *repository.LoanRepo
	users *repository.UserRepo
	book  int64
	alice int64
	bob   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewSQLite(t)
	e := &env{
		db:    db,
		books: repository.NewBookRepo(db),
		loans: repository.NewLoanRepo(db),
		users: repository.NewUserRepo(db),
	}
	a := &model.Author{Name: "Herbert"}
	require.NoError(t, repository.NewAuthorRepo(db).Create(ctx, a))
	b := &model.Book{Title: "Dune", AuthorID: a.ID}
	require.NoError(t, e.books.Create(ctx, b))
	e.book = b.ID
	for _, name := range []string{"alice", "bob"} {
		u, err := e.users.Create(ctx, name, "pw", model.RoleMember, bcrypt.MinCost)
		require.NoError(t, err)
		if name == "alice" {
			e.alice = u.ID
		} else {
			e.bob = u.ID
		}
	}
	return e
}

// assertConsistent checks that available is false iff exactly one open
// loan references the book.
func (e *env) assertConsistent(t *testing.T, bookID int64) {
	t.Helper()
	ctx := context.Background()
	b, err := e.books.GetByID(ctx, bookID)
	require.NoError(t, err)
	open, err := e.loans.CountOpen(ctx, bookID)
	require.NoError(t, err)
	if b.Available {
		assert.Zero(t, open, "available book has open loans")
	} else {
		assert.Equal(t, 1, open, "loaned book must have exactly one open loan")
	}
}

func TestParseReturnPolicy(t *testing.T) {
	p, err := ParseReturnPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReturnStrict, p)
	p, err = ParseReturnPolicy(" Lenient ")
	require.NoError(t, err)
	assert.Equal(t, ReturnLenient, p)
	_, err = ParseReturnPolicy("loose")
	assert.Error(t, err)
}

func TestBorrowReturnRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	l := NewLedger(e.db, WithPublisher(pub), WithClock(func() time.Time { return fixed }))

	loan, err := l.Borrow(ctx, e.alice, e.book)
	require.NoError(t, err)
	assert.Positive(t, loan.ID)
	assert.True(t, loan.Open())
	assert.True(t, loan.BorrowDate.Equal(fixed))
	e.assertConsistent(t, e.book)

	b, err := e.books.GetByID(ctx, e.book)
	require.NoError(t, err)
	assert.Equal(t, model.StateLoaned, b.State())

	returned, err := l.Return(ctx, e.alice, e.book)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, returned.ID)
	require.NotNil(t, returned.ReturnDate)
	e.assertConsistent(t, e.book)

	b, err = e.books.GetByID(ctx, e.book)
	require.NoError(t, err)
	assert.True(t, b.Available)

	rows, err := l.ListLoans(ctx, repository.LoanFilter{UserID: e.alice, BookID: e.book})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0].ReturnDate)

	assert.Equal(t, []string{queue.EventLoanBorrowed, queue.EventLoanReturned}, pub.types())
}

func TestBorrowUnavailableWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := NewLedger(e.db)

	_, err := l.Borrow(ctx, e.alice, e.book)
	require.NoError(t, err)

	_, err = l.Borrow(ctx, e.bob, e.book)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	rows, err := l.ListLoans(ctx, repository.LoanFilter{BookID: e.book})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	e.assertConsistent(t, e.book)
}

func TestBorrowErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := NewLedger(e.db)

	_, err := l.Borrow(ctx, 0, e.book)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.Borrow(ctx, e.alice, 999)
	assert.ErrorIs(t, err, repository.ErrBookNotFound)

	_, err = l.Borrow(ctx, 999, e.book)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	// the rolled back borrow must leave the book available
	e.assertConsistent(t, e.book)
	b, err := e.books.GetByID(ctx, e.book)
	require.NoError(t, err)
	assert.True(t, b.Available)
}

// The sqlite test pool holds a single connection, so these borrows reach the
// database one at a time.  The compare-and-swap itself is covered by
// TestCompareAndSwapState in the repository package and by
// TestBorrowLosesToCommittedSwap below.
func TestConcurrentBorrowSingleWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := NewLedger(e.db)

	const workers = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins, loses int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		user := e.alice
		if i%2 == 1 {
			user = e.bob
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Borrow(ctx, user, e.book)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrBookUnavailable):
				loses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, loses)
	e.assertConsistent(t, e.book)
}

// A borrow that starts after another caller already flipped the flag must
// lose at the UPDATE, even with no ledger row to trip over.
func TestBorrowLosesToCommittedSwap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := e.books.CompareAndSwapStateTx(ctx, tx, e.book, model.StateAvailable, model.StateLoaned)
		require.True(t, ok)
		return err
	}))

	_, err := NewLedger(e.db).Borrow(ctx, e.alice, e.book)
	assert.ErrorIs(t, err, ErrBookUnavailable)
	open, err := e.loans.CountOpen(ctx, e.book)
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestStrictReturnRejectsOpenLoanOnAvailableBook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	var stray *model.Loan
	require.NoError(t, e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		stray, err = e.loans.CreateTx(ctx, tx, e.alice, e.book, time.Now())
		return err
	}))

	_, err := NewLedger(e.db).Return(ctx, e.alice, e.book)
	assert.ErrorIs(t, err, ErrNoOpenLoan)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	got, err := e.loans.GetByID(ctx, stray.ID)
	require.NoError(t, err)
	assert.True(t, got.Open())
}

func TestStrictReturn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	l := NewLedger(e.db, WithReturnPolicy(ReturnStrict))

	_, err := l.Return(ctx, e.alice, e.book)
	assert.ErrorIs(t, err, ErrNoOpenLoan)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = l.Return(ctx, e.alice, 999)
	assert.ErrorIs(t, err, repository.ErrBookNotFound)

	_, err = l.Borrow(ctx, e.alice, e.book)
	require.NoError(t, err)

	_, err = l.Return(ctx, e.bob, e.book)
	assert.ErrorIs(t, err, ErrLoanHeldByOther)
	e.assertConsistent(t, e.book)

	_, err = l.Return(ctx, e.alice, e.book)
	require.NoError(t, err)
	_, err = l.Return(ctx, e.alice, e.book)
	assert.ErrorIs(t, err, ErrNoOpenLoan)
	e.assertConsistent(t, e.book)
}

func TestLenientReturn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	l := NewLedger(e.db, WithReturnPolicy(ReturnLenient), WithPublisher(pub))
	assert.Equal(t, ReturnLenient, l.Policy())

	loan, err := l.Return(ctx, e.alice, e.book)
	require.NoError(t, err)
	assert.Nil(t, loan)
	assert.Empty(t, pub.types())

	_, err = l.Borrow(ctx, e.alice, e.book)
	require.NoError(t, err)
	loan, err = l.Return(ctx, e.alice, e.book)
	require.NoError(t, err)
	require.NotNil(t, loan)
	assert.False(t, loan.Open())
	e.assertConsistent(t, e.book)

	_, err = l.Return(ctx, e.alice, 999)
	assert.ErrorIs(t, err, repository.ErrBookNotFound)
}

func TestPublishFailureDoesNotUndoBorrow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := NewLedger(e.db, WithPublisher(pub), WithLogger(zap.NewNop()))

	loan, err := l.Borrow(ctx, e.alice, e.book)
	require.NoError(t, err)
	assert.Positive(t, loan.ID)
	e.assertConsistent(t, e.book)
	assert.Len(t, pub.types(), 1)
}

func TestNewLoanEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := NewLoanEvent(queue.EventLoanBorrowed, model.Loan{ID: 3, UserID: 4, BookID: 5, BorrowDate: at}, at)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, int64(3), ev.LoanID)
	assert.Equal(t, queue.EventLoanBorrowed, ev.EventType)
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), ev))

	other := NewLoanEvent(queue.EventLoanBorrowed, model.Loan{ID: 3}, at)
	assert.NotEqual(t, ev.EventID, other.EventID)
}
