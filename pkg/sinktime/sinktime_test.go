package sinktime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierSingle(t *testing.T) {
	f := SingleFrontier(5)
	v, ok := f.Single()
	require.True(t, ok)
	assert.Equal(t, Timestamp(5), v)

	empty := EmptyFrontier()
	_, ok = empty.Single()
	assert.False(t, ok)
}

func TestFrontierMultiDimensionalPanics(t *testing.T) {
	f := FrontierFromElements([]Timestamp{1, 2})
	assert.Panics(t, func() { f.Single() })
}

func TestFrontierLessThanLessEqual(t *testing.T) {
	f := SingleFrontier(5)
	assert.True(t, f.LessThan(6))
	assert.False(t, f.LessThan(5))
	assert.True(t, f.LessEqual(5))
	assert.False(t, f.LessEqual(4))

	assert.False(t, EmptyFrontier().LessThan(100))
}

func TestFrontierMeet(t *testing.T) {
	assert.Equal(t, SingleFrontier(3), SingleFrontier(3).Meet(SingleFrontier(7)))
	assert.Equal(t, SingleFrontier(3), SingleFrontier(7).Meet(SingleFrontier(3)))
	assert.Equal(t, EmptyFrontier(), EmptyFrontier().Meet(EmptyFrontier()))
	assert.Equal(t, SingleFrontier(3), EmptyFrontier().Meet(SingleFrontier(3)))
}

func TestMeetAllEmptyIsInfinite(t *testing.T) {
	m := MeetAll(nil)
	assert.True(t, m.IsEmpty())
}

func TestSaturatingSub(t *testing.T) {
	assert.Equal(t, Timestamp(9), Timestamp(10).SaturatingSub(1))
	assert.Equal(t, TimestampMin, Timestamp(0).SaturatingSub(1))
}
