// Package sinkconfig assembles one sink's configuration from the
// recognized keys named in spec.md §6, via functional options in the same
// style as kgo.Opt (github.com/twmb/franz-go/pkg/kgo), the teacher's own
// configuration idiom.
package sinkconfig

import (
	"fmt"

	"github.com/cdcsink/kafkasink/pkg/encode"
	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// Consistency mirrors spec.md §6's optional `consistency: { topic,
// schema_id, gate_ts? }` key.
type Consistency struct {
	Topic    string
	SchemaID string
	GateTs   *sinktime.Timestamp
}

// Config is the fully assembled, validated configuration for one sink.
type Config struct {
	Topic       string
	TopicPrefix string
	ExactlyOnce bool
	Consistency *Consistency
	Fuel        int
	Addrs       []string
	// ConfigOptions is the pass-through map handed to the producer facade;
	// denylisted keys (statistics.interval.ms, isolation.level) are
	// dropped there, not here, so the denylist stays co-located with the
	// producer construction it governs.
	ConfigOptions map[string]string
	AsOf          encode.AsOf
	Epoch         string
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithTopic sets the data topic and its control-record key prefix.
func WithTopic(topic, prefix string) Option {
	return func(c *Config) { c.Topic = topic; c.TopicPrefix = prefix }
}

// WithExactlyOnce toggles transactional mode.
func WithExactlyOnce(enabled bool) Option {
	return func(c *Config) { c.ExactlyOnce = enabled }
}

// WithConsistency configures the auxiliary consistency topic.
func WithConsistency(topic, schemaID string, gateTs *sinktime.Timestamp) Option {
	return func(c *Config) { c.Consistency = &Consistency{Topic: topic, SchemaID: schemaID, GateTs: gateTs} }
}

// WithFuel sets the encoder's per-activation fuel budget.
func WithFuel(fuel int) Option {
	return func(c *Config) { c.Fuel = fuel }
}

// WithAddrs sets the broker bootstrap list.
func WithAddrs(addrs ...string) Option {
	return func(c *Config) { c.Addrs = append([]string(nil), addrs...) }
}

// WithConfigOptions sets the pass-through producer option map.
func WithConfigOptions(opts map[string]string) Option {
	return func(c *Config) { c.ConfigOptions = opts }
}

// WithAsOf sets the initial admission gate.
func WithAsOf(frontier sinktime.Timestamp, strict bool) Option {
	return func(c *Config) { c.AsOf = encode.AsOf{Frontier: frontier, Strict: strict} }
}

// WithEpoch appends a per-incarnation/per-worker token to the
// transactional identifier, resolving the known limitation that deriving
// it from topic alone assumes a single concurrent writer per topic.
func WithEpoch(epoch string) Option {
	return func(c *Config) { c.Epoch = epoch }
}

// New builds a Config from defaults plus the given options, then validates
// it.
func New(opts ...Option) (Config, error) {
	c := Config{Fuel: 1000}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.Topic == "" {
		return fmt.Errorf("sinkconfig: topic is required")
	}
	if c.Fuel <= 0 {
		return fmt.Errorf("sinkconfig: fuel must be positive, got %d", c.Fuel)
	}
	if c.ExactlyOnce && len(c.Addrs) == 0 {
		return fmt.Errorf("sinkconfig: exactly-once mode requires at least one broker address")
	}
	return nil
}

// GateTs returns the restart-gate timestamp, if a consistency topic with
// one is configured.
func (c Config) GateTs() *sinktime.Timestamp {
	if c.Consistency == nil {
		return nil
	}
	return c.Consistency.GateTs
}
