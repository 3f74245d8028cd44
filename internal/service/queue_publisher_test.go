package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-loans/internal/model"
	"github.com/iliyamo/library-loans/internal/queue"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestAMQPPublisherHonoursContextDeadline(t *testing.T) {
	p := NewAMQPPublisher(silentBroker(t))
	t.Cleanup(func() { _ = p.Close() })
	ev := NewLoanEvent(queue.EventLoanBorrowed, model.Loan{ID: 1, UserID: 2, BookID: 3}, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Publish(ctx, ev)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestAMQPPublisherWaitersGiveUpWithTheirContext(t *testing.T) {
	p := NewAMQPPublisher(silentBroker(t))
	t.Cleanup(func() { _ = p.Close() })
	ev := NewLoanEvent(queue.EventLoanReturned, model.Loan{ID: 1, UserID: 2, BookID: 3}, time.Now())

	// hold the connection slot as a slow publish would
	require.NoError(t, p.lock(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Publish(ctx, ev)
	p.unlock()

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
