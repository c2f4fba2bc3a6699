// Package kafkatxn implements the transactional producer facade (component
// B): synchronous transactional primitives over a broker client, each
// surfaced as a cancellable, context-aware call. The concrete
// implementation wraps github.com/twmb/franz-go/pkg/kgo.Client directly;
// method shapes are grounded on that library's real API as exercised by
// other_examples/92b2abd6_bharathv-kgo-verifier__pkg-worker-verifier-transactional_producer_worker.go.go
// (BeginTransaction/EndTransaction/Flush/Produce) and on the teacher's own
// pkg/kgo/producer.go (buffered-record accounting, promise callbacks).
package kafkatxn

import (
	"context"
	"fmt"
)

// Record is a single message to hand to the broker, with optional key and
// value bytes, mirroring kgo.Record.
type Record struct {
	Topic string
	Key   []byte
	Value []byte
}

// Producer is the facade the sink state machine drives. Every method that
// can block on broker I/O takes a context and is expected to be
// cancellable; Send and InFlightCount are non-blocking.
type Producer interface {
	// InitTransactions must be called once, before the first produce,
	// when exactly-once is enabled.
	InitTransactions(ctx context.Context) error
	// BeginTransaction must precede any Send in a transaction.
	BeginTransaction(ctx context.Context) error
	// CommitTransaction flushes then commits.
	CommitTransaction(ctx context.Context) error
	// AbortTransaction discards uncommitted sends.
	AbortTransaction(ctx context.Context) error
	// Flush drives the producer queue empty.
	Flush(ctx context.Context) error
	// Send enqueues a record; it does not wait for acknowledgement. A
	// full local buffer surfaces as retry.ErrQueueFull.
	Send(ctx context.Context, rec Record) error
	// InFlightCount reports unacknowledged records buffered locally.
	InFlightCount() int64
}

// ErrShutdown is the sentinel for "the producer is shutting down". No
// operation of KgoProducer returns it; after the shutdown flag is tripped,
// facade calls still return the broker client's own errors.
var ErrShutdown = fmt.Errorf("kafkatxn: producer is shutting down")
