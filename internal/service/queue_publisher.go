package service

import (
    "context"
    "fmt"
    "time"

    "github.com/google/uuid"
    jsoniter "github.com/json-iterator/go"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/library-loans/internal/model"
    "github.com/iliyamo/library-loans/internal/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventPublisher receives ledger events after their transaction commits.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.LoanEvent) error
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.LoanEvent) error { return nil }

// NewLoanEvent builds the event for a loan, stamping a fresh id.
func NewLoanEvent(eventType string, l model.Loan, at time.Time) queue.LoanEvent {
    return queue.LoanEvent{
        EventID:    uuid.NewString(),
        EventType:  eventType,
        LoanID:     l.ID,
        UserID:     l.UserID,
        BookID:     l.BookID,
        BorrowDate: l.BorrowDate,
        ReturnDate: l.ReturnDate,
        OccurredAt: at.UTC(),
    }
}

// defaultDialTimeout bounds the broker handshake when the caller's context
// carries no deadline.
const defaultDialTimeout = 5 * time.Second

// AMQPPublisher publishes loan events to the durable library.loans queue.
// The broker connection is opened lazily and re-dialled after it drops.
type AMQPPublisher struct {
    url string

    // sem serialises access to conn; acquiring it honours the caller's context
    sem  chan struct{}
    conn *amqp.Connection
}

// NewAMQPPublisher returns a publisher for the broker at url.  No network
// traffic happens until the first Publish.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{url: url, sem: make(chan struct{}, 1)}
}

func (p *AMQPPublisher) lock(ctx context.Context) error {
    select {
    case p.sem <- struct{}{}:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (p *AMQPPublisher) unlock() { <-p.sem }

// connection returns the live connection or dials a new one.  The dial and
// the AMQP handshake both end by the context deadline.
func (p *AMQPPublisher) connection(ctx context.Context) (*amqp.Connection, error) {
    if p.conn != nil && !p.conn.IsClosed() {
        return p.conn, nil
    }
    timeout := defaultDialTimeout
    if dl, ok := ctx.Deadline(); ok {
        timeout = time.Until(dl)
    }
    if timeout <= 0 {
        return nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
    }
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
    if err != nil {
        return nil, fmt.Errorf("rabbitmq dial: %w", err)
    }
    p.conn = conn
    return conn, nil
}

// Publish sends ev as a persistent JSON message whose MessageId is the
// event id.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.LoanEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    if err := p.lock(ctx); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    defer p.unlock()
    conn, err := p.connection(ctx)
    if err != nil {
        return err
    }
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        queue.LoanQueueName, // name
        true,                // durable
        false,               // autoDelete
        false,               // exclusive
        false,               // noWait
        nil,                 // args
    ); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Type:         ev.EventType,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue.LoanQueueName, false, false, pub); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    return nil
}

// Close releases the broker connection, if any.
func (p *AMQPPublisher) Close() error {
    p.sem <- struct{}{}
    defer p.unlock()
    if p.conn == nil || p.conn.IsClosed() {
        return nil
    }
    return p.conn.Close()
}
