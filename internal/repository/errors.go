// Package repository defines the data access layer and the sentinel errors
// shared by its stores.  Handlers translate these values into HTTP
// responses; the ledger service builds its own rules on top of them.
package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorNotFound is returned when an author id does not resolve.
	ErrAuthorNotFound = errors.New("author not found")
	// ErrBookNotFound is returned when a book id does not resolve.
	ErrBookNotFound = errors.New("book not found")
	// ErrUserNotFound is returned when a user id or username does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoanNotFound is returned when no ledger row matches.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrLoanExists is returned when a book already has an open loan.
	ErrLoanExists = errors.New("book already has an open loan")

	// ErrUsernameTaken is returned by UserRepo.Create on a duplicate username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrConflict signals that a delete cannot proceed because other
	// records still depend on the target.  The more specific errors below
	// wrap it so callers may match either.
	ErrConflict = errors.New("conflict")
	// ErrAuthorHasBooks prevents deleting an author who still has books.
	ErrAuthorHasBooks = fmt.Errorf("%w: author has books", ErrConflict)
	// ErrBookOnLoan prevents deleting a book that is currently borrowed.
	ErrBookOnLoan = fmt.Errorf("%w: book is on loan", ErrConflict)
	// ErrBookHasHistory prevents deleting a book referenced by the ledger.
	ErrBookHasHistory = fmt.Errorf("%w: book has loan history", ErrConflict)
)
