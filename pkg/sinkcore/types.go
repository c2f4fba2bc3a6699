// Package sinkcore implements the sink state machine (component D): the
// pending/ready row maps, the BEGIN/send/END/commit drain loop per closed
// timestamp, and the maybe_emit_progress logic that advances the shared
// write frontier. It is the largest and most central component; everything
// else in this repo exists to be driven by or to drive Sink.Step.
package sinkcore

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cdcsink/kafkasink/pkg/encode"
	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// SendState is the sink's coarse lifecycle state.
type SendState int

const (
	// StateInit holds until this worker is the active writer, the ready
	// queue has its first batch, and (if exactly-once) InitTransactions
	// has succeeded.
	StateInit SendState = iota
	// StateRunning means the drain loop may begin processing batches.
	StateRunning
)

func (s SendState) String() string {
	if s == StateRunning {
		return "Running"
	}
	return "Init"
}

// readyBatch is one entry of the ReadyQueue: a closed timestamp and the
// rows accumulated for it in the PendingMap.
type readyBatch struct {
	Time sinktime.Timestamp
	Rows []encode.EncodedRow
}

// WriteFrontier is the shared single-writer/multi-reader cell publishing
// the sink's output lower bound to upstream compaction. Exactly one
// goroutine -- the active writer's Step caller -- ever calls Set/Clear;
// any number of readers may call Get concurrently.
type WriteFrontier struct {
	mu  sync.RWMutex
	val *sinktime.Timestamp
}

// Get returns the current frontier value and whether it is set (a false
// ok means the frontier is empty/cleared).
func (w *WriteFrontier) Get() (sinktime.Timestamp, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.val == nil {
		return 0, false
	}
	return *w.val, true
}

// Set publishes a new frontier value. Callers are responsible for the
// monotonicity invariant; see Sink.assertProgress.
func (w *WriteFrontier) Set(t sinktime.Timestamp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := t
	w.val = &v
}

// Clear empties the frontier, as happens on shutdown or permanent
// end-of-stream.
func (w *WriteFrontier) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.val = nil
}

// ShutdownFlag is a set-once atomic boolean with acquire/release semantics
// provided for free by atomic.Bool's happens-before guarantees.
type ShutdownFlag struct {
	flag atomic.Bool
}

// Set trips the flag. Idempotent: later calls are no-ops.
func (f *ShutdownFlag) Set() { f.flag.Store(true) }

// IsSet reports whether the flag has been tripped.
func (f *ShutdownFlag) IsSet() bool { return f.flag.Load() }

// pendingMap is the PendingMap from the data model: timestamp to the
// ordered rows accumulated for it so far. Insertion order within a
// timestamp is preserved by appending.
type pendingMap map[sinktime.Timestamp][]encode.EncodedRow

// closedKeysBelow returns the pendingMap's keys that are closed relative
// to inputFrontier and durabilityFrontier, sorted ascending.
func closedKeysBelow(p pendingMap, inputFrontier, durabilityFrontier sinktime.Frontier) []sinktime.Timestamp {
	var out []sinktime.Timestamp
	for t := range p {
		if frontierExceeds(inputFrontier, t) && frontierExceeds(durabilityFrontier, t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// frontierExceeds reports "f > t", treating an empty (closed, "+infinity")
// frontier as exceeding every finite timestamp.
func frontierExceeds(f sinktime.Frontier, t sinktime.Timestamp) bool {
	return !f.LessEqual(t)
}

func minKey(p pendingMap) (sinktime.Timestamp, bool) {
	first := true
	var min sinktime.Timestamp
	for t := range p {
		if first || t < min {
			min = t
			first = false
		}
	}
	return min, !first
}
