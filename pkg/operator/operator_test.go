package operator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cdcsink/kafkasink/internal/testkafka"
	"github.com/cdcsink/kafkasink/pkg/encode"
	"github.com/cdcsink/kafkasink/pkg/sinkcore"
	"github.com/cdcsink/kafkasink/pkg/sinktime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveWriterIsDeterministicAndExactlyOne(t *testing.T) {
	const workers = 4
	count := 0
	for i := 0; i < workers; i++ {
		if ActiveWriter("sink-xyz", i, workers) {
			count++
		}
	}
	assert.Equal(t, 1, count)

	assert.Equal(t, ActiveWriter("sink-xyz", 2, workers), ActiveWriter("sink-xyz", 2, workers))
}

// oneShotInput delivers a single batch-plus-frontier then reports the
// stream as permanently closed.
type oneShotInput struct {
	mu       sync.Mutex
	batches  []encode.EncodedBatch
	frontier sinktime.Frontier
	served   bool
}

func (s *oneShotInput) Poll(ctx context.Context) ([]encode.EncodedBatch, sinktime.Frontier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return nil, sinktime.EmptyFrontier(), nil
	}
	s.served = true
	return s.batches, s.frontier, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishWriteFrontier(string, *sinkcore.WriteFrontier) {}

func TestDriverRunsToCompletion(t *testing.T) {
	broker := testkafka.NewBroker()
	prod := testkafka.NewProducer(broker, nil)
	sink := sinkcore.New(sinkcore.Config{
		SinkID:         "sink1",
		Topic:          "data",
		IsActiveWriter: true,
		Producer:       prod,
		ControlCodec:   encode.NewJSONEncoder(),
	})

	in := &oneShotInput{
		frontier: sinktime.SingleFrontier(6),
		batches: []encode.EncodedBatch{
			{Time: 5, Rows: []encode.EncodedRow{{Key: []byte("k"), Value: []byte("v"), Count: 1}}},
		},
	}
	d := NewDriver("sink1", sink, in, nil, noopPublisher{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := d.Run(ctx)
	require.NoError(t, err)

	assert.Len(t, broker.MessagesForTopic("data"), 1)
}
