// Package retry implements the three-way broker-error taxonomy and the
// bounded-backoff retry loop (component C). Classification is grounded on
// github.com/twmb/franz-go/pkg/kerr's *kerr.Error.Retriable field, the
// pattern used throughout the franz-go transaction helpers
// (other_examples/47146549_rodaine-franz-go__pkg-kgo-txn.go.go).
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kerr"
)

// Kind classifies a broker error for the purposes of the retry loop.
type Kind int

const (
	// KindRetriableTransport covers queue-full and transient network
	// errors: back off and retry the same call indefinitely.
	KindRetriableTransport Kind = iota
	// KindTxnRetriable covers transaction errors the broker marked safe
	// to retry without aborting.
	KindTxnRetriable
	// KindTxnRequiresAbort covers transaction errors that require
	// driving AbortTransaction before anything else can proceed.
	KindTxnRequiresAbort
	// KindFatal covers everything else: non-retriable send/transaction
	// errors, delivery-callback failures, and cancellation that exceeds
	// the retry budget.
	KindFatal
)

// ErrQueueFull is returned by a Producer.Send implementation when the
// broker client's local buffer is full; it is always classified
// KindRetriableTransport.
var ErrQueueFull = errors.New("retry: producer send queue is full")

// RequiresAbort is implemented by broker errors that know, on their own,
// that they require the in-flight transaction to be aborted rather than
// retried. Only errors that implement this interface themselves classify as
// KindTxnRequiresAbort; kafkatxn.KgoProducer returns kgo/kerr errors
// unwrapped, so a non-retriable *kerr.Error from it classifies KindFatal.
type RequiresAbort interface {
	TxnRequiresAbort() bool
}

// Classify maps a raw broker error to a Kind. nil errors are never passed
// to Classify by callers (a nil error means success, not "no error kind").
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, ErrQueueFull) || errors.Is(err, context.DeadlineExceeded) {
		return KindRetriableTransport
	}

	var ra RequiresAbort
	if errors.As(err, &ra) && ra.TxnRequiresAbort() {
		return KindTxnRequiresAbort
	}

	var ke *kerr.Error
	if errors.As(err, &ke) {
		if ke.Retriable {
			return KindTxnRetriable
		}
		return KindFatal
	}

	if errors.Is(err, context.Canceled) {
		return KindRetriableTransport
	}

	return KindFatal
}

// NewBackoff builds the unbounded, 10-minute-clamped exponential backoff
// policy every retry loop in this sink uses. MaxElapsedTime is
// deliberately zero (unbounded): per spec, the sink either succeeds, is
// externally cancelled, or is pushed into shutdown by error
// classification -- never by exhausting a retry budget on its own.
func NewBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Do runs op repeatedly until it succeeds, ctx is cancelled, or op returns
// a KindFatal error. Retriable-transport and txn-retriable errors are
// retried with backoff; a KindTxnRequiresAbort error is returned to the
// caller unclassified-further so the caller can drive AbortTransaction
// under its own retry policy, per spec (abort itself must be retried
// independently, and its own failure escalates to shutdown).
func Do(ctx context.Context, op func() error) error {
	b := backoff.WithContext(NewBackoff(), ctx)
	var lastErr error
	for {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		switch Classify(err) {
		case KindRetriableTransport, KindTxnRetriable:
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return lastErr
			}
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		case KindTxnRequiresAbort, KindFatal:
			return err
		}
	}
}
