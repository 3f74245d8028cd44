package model

import "time"

// Loan is one ledger entry in the `borrows` table.  Rows are only ever
// inserted; ReturnDate moves from nil to a timestamp exactly once.
type Loan struct {
    ID         int64      `db:"id" json:"id"`
    UserID     int64      `db:"user_id" json:"user_id"`
    BookID     int64      `db:"book_id" json:"book_id"`
    BorrowDate time.Time  `db:"borrow_date" json:"borrow_date"`
    ReturnDate *time.Time `db:"return_date" json:"return_date"`
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool { return l.ReturnDate == nil }
