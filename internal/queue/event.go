// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import "time"

// LoanQueueName is the durable queue carrying ledger events.
const LoanQueueName = "library.loans"

// Event types carried in LoanEvent.EventType.
const (
    EventLoanBorrowed = "loan.borrowed"
    EventLoanReturned = "loan.returned"
)

// LoanEvent is published after a borrow or return commits.  It carries
// enough for downstream consumers to log or notify without querying the
// primary database.
type LoanEvent struct {
    EventID    string     `json:"event_id"`
    EventType  string     `json:"event_type"`
    LoanID     int64      `json:"loan_id"`
    UserID     int64      `json:"user_id"`
    BookID     int64      `json:"book_id"`
    BorrowDate time.Time  `json:"borrow_date"`
    ReturnDate *time.Time `json:"return_date,omitempty"`
    OccurredAt time.Time  `json:"occurred_at"`
}
