package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type abortErr struct{ requires bool }

func (e abortErr) Error() string          { return "requires abort" }
func (e abortErr) TxnRequiresAbort() bool { return e.requires }

func TestClassify(t *testing.T) {
	assert.Equal(t, KindRetriableTransport, Classify(ErrQueueFull))
	assert.Equal(t, KindTxnRequiresAbort, Classify(abortErr{requires: true}))
	assert.Equal(t, KindFatal, Classify(errors.New("boom")))
	assert.Equal(t, KindRetriableTransport, Classify(context.Canceled))
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return ErrQueueFull
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnFatal(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return errors.New("non-retriable")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoStopsOnRequiresAbort(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return abortErr{requires: true}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error {
		return ErrQueueFull
	})
	require.Error(t, err)
}
