package sinkconfig

import (
	"testing"

	"github.com/cdcsink/kafkasink/pkg/sinktime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c, err := New(WithTopic("t", "p"))
	require.NoError(t, err)
	assert.Equal(t, 1000, c.Fuel)
	assert.False(t, c.ExactlyOnce)
	assert.Nil(t, c.Consistency)
}

func TestNewRequiresTopic(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestNewRequiresAddrsForExactlyOnce(t *testing.T) {
	_, err := New(WithTopic("t", "p"), WithExactlyOnce(true))
	assert.Error(t, err)

	_, err = New(WithTopic("t", "p"), WithExactlyOnce(true), WithAddrs("localhost:9092"))
	assert.NoError(t, err)
}

func TestWithConsistencyAndGateTs(t *testing.T) {
	gate := sinktime.Timestamp(42)
	c, err := New(WithTopic("t", "p"), WithConsistency("ct", "schema1", &gate))
	require.NoError(t, err)
	require.NotNil(t, c.Consistency)
	assert.Equal(t, "ct", c.Consistency.Topic)
	require.NotNil(t, c.GateTs())
	assert.Equal(t, sinktime.Timestamp(42), *c.GateTs())
}

func TestWithFuelRejectsNonPositive(t *testing.T) {
	_, err := New(WithTopic("t", "p"), WithFuel(0))
	assert.Error(t, err)
}
