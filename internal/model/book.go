package model

import (
    "errors"
    "fmt"
)

// LoanState is the two-state machine behind books.available.  The column is
// kept as a boolean for storage compatibility; code outside the repository
// layer reasons in terms of states instead of raw flags.
//
//  Available --borrow--> Loaned --return--> Available
type LoanState int

const (
    StateAvailable LoanState = iota
    StateLoaned
)

// ErrIllegalTransition is returned when a state change is not allowed by the
// loan state machine.
var ErrIllegalTransition = errors.New("illegal loan state transition")

// StateFromAvailable converts the stored flag into a state.
func StateFromAvailable(available bool) LoanState {
    if available {
        return StateAvailable
    }
    return StateLoaned
}

// Available reports the storage representation of the state.
func (s LoanState) Available() bool { return s == StateAvailable }

func (s LoanState) String() string {
    switch s {
    case StateAvailable:
        return "available"
    case StateLoaned:
        return "loaned"
    }
    return fmt.Sprintf("LoanState(%d)", int(s))
}

// MarshalText renders the state as its name in JSON payloads.
func (s LoanState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Borrow returns the state after a successful borrow.
func (s LoanState) Borrow() (LoanState, error) {
    if s != StateAvailable {
        return s, fmt.Errorf("%w: borrow from %s", ErrIllegalTransition, s)
    }
    return StateLoaned, nil
}

// Return returns the state after a return.
func (s LoanState) Return() (LoanState, error) {
    if s != StateLoaned {
        return s, fmt.Errorf("%w: return from %s", ErrIllegalTransition, s)
    }
    return StateAvailable, nil
}

// Book mirrors a row of the `books` table.  Quantity is informational only;
// the ledger tracks a single copy through Available.
type Book struct {
    ID            int64   `db:"id" json:"id"`
    Title         string  `db:"title" json:"title"`
    ISBN          *string `db:"isbn" json:"isbn"`
    PublishedYear *int    `db:"published_year" json:"published_year"`
    Quantity      int     `db:"quantity" json:"quantity"`
    AuthorID      int64   `db:"author_id" json:"author_id"`
    Available     bool    `db:"available" json:"available"`
}

// State returns the loan state encoded by the available column.
func (b Book) State() LoanState { return StateFromAvailable(b.Available) }

// BookListItem is a book joined with its author's name, as returned by the
// catalog listing.
type BookListItem struct {
    Book
    AuthorName string `db:"author_name" json:"author_name"`
}

// BookDetail is a single book with its author nested.
type BookDetail struct {
    Book
    State  LoanState `json:"state"`
    Author Author    `json:"author"`
}
