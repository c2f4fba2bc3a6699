package encode

import (
	"testing"

	"github.com/cdcsink/kafkasink/pkg/sinktime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gate(t sinktime.Timestamp) *sinktime.Timestamp { return &t }

func TestStageDiscardsStaleAndGated(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 3, Strict: true}, gate(5), 100)
	s.Push([]Update{
		{Key: "k1", Value: "v1", Time: 3, Diff: 1}, // not should_emit (strict: 3 < 3 false)
		{Key: "k2", Value: "v2", Time: 4, Diff: 1}, // gated (<=5)
		{Key: "k3", Value: "v3", Time: 6, Diff: 1}, // admitted
	})
	batches, more := s.Drain()
	require.False(t, more)
	require.Len(t, batches, 1)
	assert.Equal(t, sinktime.Timestamp(6), batches[0].Time)
	assert.Len(t, batches[0].Rows, 1)
}

func TestStageZeroDiffDiscarded(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 0, Strict: false}, nil, 100)
	s.Push([]Update{{Key: "k", Value: "v", Time: 1, Diff: 0}})
	batches, _ := s.Drain()
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0].Rows)
}

func TestStageNegativeDiffPanics(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 0, Strict: false}, nil, 100)
	s.Push([]Update{{Key: "k", Value: "v", Time: 1, Diff: -1}})
	assert.PanicsWithValue(t, ErrNegativeDiff, func() { s.Drain() })
}

func TestStageDiffExpandsToCount(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 0, Strict: false}, nil, 100)
	s.Push([]Update{{Key: "k", Value: "v", Time: 1, Diff: 3}})
	batches, _ := s.Drain()
	require.Len(t, batches[0].Rows, 1)
	assert.Equal(t, uint64(3), batches[0].Rows[0].Count)
}

func TestStageFuelBoundedAndAscendingOrder(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 0, Strict: false}, nil, 2)
	s.Push([]Update{
		{Key: "a", Value: "a", Time: 5, Diff: 1},
		{Key: "b", Value: "b", Time: 2, Diff: 1},
		{Key: "c", Value: "c", Time: 2, Diff: 1},
		{Key: "d", Value: "d", Time: 2, Diff: 1},
	})
	batches, more := s.Drain()
	require.True(t, more, "fuel of 2 must not drain all 4 updates in one activation")
	require.Len(t, batches, 1)
	assert.Equal(t, sinktime.Timestamp(2), batches[0].Time, "lowest timestamp drains first")
	assert.Len(t, batches[0].Rows, 2)

	batches, more = s.Drain()
	require.False(t, more)
	// remaining: one more row at t=2, then t=5
	require.Len(t, batches, 2)
	assert.Equal(t, sinktime.Timestamp(2), batches[0].Time)
	assert.Equal(t, sinktime.Timestamp(5), batches[1].Time)
}

func TestStageOptionalKeyValue(t *testing.T) {
	s := NewStage(NewJSONEncoder(), AsOf{Frontier: 0, Strict: false}, nil, 100)
	s.Push([]Update{{Key: nil, Value: "v", Time: 1, Diff: 1}})
	batches, _ := s.Drain()
	require.Len(t, batches[0].Rows, 1)
	assert.Nil(t, batches[0].Rows[0].Key)
	assert.NotNil(t, batches[0].Rows[0].Value)
}
