package queue

import (
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    jsoniter "github.com/json-iterator/go"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Consumer reads LoanQueueName and appends one line per event to LogPath.
type Consumer struct {
    URL     string
    LogPath string
    Log     *zap.Logger
}

// Run connects to RabbitMQ, declares the loan queue (durable) and consumes
// until ctx is cancelled.  Broker failures are retried with exponential
// backoff; a message that cannot be handled is rejected without requeue so
// it cannot loop.
func (c *Consumer) Run(ctx context.Context) error {
    if c.Log == nil {
        c.Log = zap.NewNop()
    }
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.Warn("loan-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.Warn("loan-consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.Warn("loan-consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(LoanQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, LoanQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.handleMessage(d.Body); err != nil {
            c.Log.Error("loan-consumer: handle message failed", zap.Error(err), zap.String("message_id", d.MessageId))
            _ = d.Nack(false, false)
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func (c *Consumer) handleMessage(body []byte) error {
    var ev LoanEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.EventType != EventLoanBorrowed && ev.EventType != EventLoanReturned {
        return fmt.Errorf("unknown event type %q", ev.EventType)
    }
    if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders an event as a single human-friendly log line.
func FormatLine(ev LoanEvent) string {
    ret := "-"
    if ev.ReturnDate != nil {
        ret = ev.ReturnDate.UTC().Format(time.RFC3339)
    }
    return fmt.Sprintf("[%s] %s | event_id=%s | loan_id=%d | user_id=%d | book_id=%d | borrowed=%s | returned=%s\n",
        ev.OccurredAt.UTC().Format(time.RFC3339), ev.EventType, ev.EventID, ev.LoanID, ev.UserID, ev.BookID,
        ev.BorrowDate.UTC().Format(time.RFC3339), ret)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
