// Package encode implements the encoder adapter (component A): it turns
// opaque upstream rows into key/value byte pairs, discards updates that are
// stale relative to the as-of frontier or the restart gate timestamp, and
// cooperates with a fuel-bounded scheduler the way the teacher's
// encode_stream operator does (github.com/twmb/franz-go/pkg/kgo, adapted:
// instead of a timely Capability the stash here is keyed directly by
// sinktime.Timestamp, since capabilities are a dataflow-host concept that
// is out of scope for this sink core).
package encode

import (
	"fmt"
	"sort"

	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// Row is an opaque row value produced by the upstream dataflow. The sink
// core never interprets it directly; only a Codec does.
type Row = any

// Update is a single differential update as received from upstream: an
// optional key row, an optional value row, a logical time, and a diff.
type Update struct {
	Key   Row
	Value Row
	Time  sinktime.Timestamp
	Diff  sinktime.Diff
}

// EncodedRow is an update once its key/value have been turned into bytes
// and its diff has been expanded into a repeat count. Optional bytes are
// represented as a nil slice, mirroring kgo.Record.Key/Value.
type EncodedRow struct {
	Key   []byte
	Value []byte
	Count uint64
}

// EncodedBatch is the output of one drained timestamp: all EncodedRows
// produced for that Time during one or more activations.
type EncodedBatch struct {
	Time sinktime.Timestamp
	Rows []EncodedRow
}

// Codec is the pluggable row-encoding capability. Implementations must not
// retain the Row after returning; they also must not themselves validate
// emission eligibility -- that is this package's job.
type Codec interface {
	EncodeKeyUnchecked(row Row) []byte
	EncodeValueUnchecked(row Row) []byte
	FormatName() string
}

// AsOf is the admission lower bound applied to every update before it is
// encoded.
type AsOf struct {
	Frontier sinktime.Timestamp
	Strict   bool
}

func (a AsOf) shouldEmit(t sinktime.Timestamp) bool {
	if a.Strict {
		return a.Frontier < t
	}
	return a.Frontier <= t
}

// ErrNegativeDiff is the fatal, panic-only error raised when an update
// carries a negative multiplicity. Negative diffs (retractions) are
// rejected by design; see spec Non-goals.
var ErrNegativeDiff = fmt.Errorf("encode: negative diff is not supported")

// Stage is the fuel-bounded encoder adapter. It is not safe for concurrent
// use: exactly one activation runs Drain at a time, matching the
// single-threaded cooperative scheduling model of the operator this is
// embedded in.
type Stage struct {
	codec   Codec
	asOf    AsOf
	gateTs  *sinktime.Timestamp
	fuel    int
	stashed map[sinktime.Timestamp][]Update
}

// NewStage constructs an encoder stage. gateTs is nil when no consistency
// topic / restart gate is configured.
func NewStage(codec Codec, asOf AsOf, gateTs *sinktime.Timestamp, fuel int) *Stage {
	if fuel <= 0 {
		fuel = 1
	}
	return &Stage{
		codec:   codec,
		asOf:    asOf,
		gateTs:  gateTs,
		fuel:    fuel,
		stashed: make(map[sinktime.Timestamp][]Update),
	}
}

func (s *Stage) gated(t sinktime.Timestamp) bool {
	return s.gateTs != nil && t <= *s.gateTs
}

// Push admits a batch of freshly arrived updates into the stash, applying
// the as-of and gate filters. It never encodes; encoding only happens
// during Drain, so that fuel accounting is exact.
func (s *Stage) Push(updates []Update) {
	for _, u := range updates {
		if !s.asOf.shouldEmit(u.Time) || s.gated(u.Time) {
			continue
		}
		s.stashed[u.Time] = append(s.stashed[u.Time], u)
	}
}

// Pending reports whether the stash still holds unencoded updates.
func (s *Stage) Pending() bool { return len(s.stashed) > 0 }

// Drain encodes up to the stage's fuel budget of updates, lowest timestamp
// first, expanding positive diffs into repeat counts and dropping zero
// diffs silently. It panics on a negative diff (fatal programming error
// per spec). It returns the batches produced this activation (one per
// distinct timestamp touched) and whether the stash still has more work
// (the caller should reschedule the activator immediately when true).
func (s *Stage) Drain() ([]EncodedBatch, bool) {
	remaining := s.fuel
	byTime := make(map[sinktime.Timestamp]*EncodedBatch)
	var order []sinktime.Timestamp

	for remaining > 0 && len(s.stashed) > 0 {
		lowest := s.lowestStashedTime()
		updates := s.stashed[lowest]

		n := len(updates)
		if n > remaining {
			n = remaining
		}

		batch, ok := byTime[lowest]
		if !ok {
			batch = &EncodedBatch{Time: lowest}
			byTime[lowest] = batch
			order = append(order, lowest)
		}

		for _, u := range updates[:n] {
			if u.Diff < 0 {
				panic(ErrNegativeDiff)
			}
			if u.Diff == 0 {
				continue
			}
			batch.Rows = append(batch.Rows, EncodedRow{
				Key:   encodeOptional(s.codec.EncodeKeyUnchecked, u.Key),
				Value: encodeOptional(s.codec.EncodeValueUnchecked, u.Value),
				Count: uint64(u.Diff),
			})
		}

		remaining -= n
		rest := updates[n:]
		if len(rest) == 0 {
			delete(s.stashed, lowest)
		} else {
			s.stashed[lowest] = rest
		}
	}

	out := make([]EncodedBatch, 0, len(order))
	for _, t := range order {
		out = append(out, *byTime[t])
	}
	return out, s.Pending()
}

func (s *Stage) lowestStashedTime() sinktime.Timestamp {
	keys := make([]sinktime.Timestamp, 0, len(s.stashed))
	for k := range s.stashed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[0]
}

func encodeOptional(fn func(Row) []byte, row Row) []byte {
	if row == nil {
		return nil
	}
	return fn(row)
}

// FormatName exposes the codec's format for logging/metrics labels.
func (s *Stage) FormatName() string { return s.codec.FormatName() }
