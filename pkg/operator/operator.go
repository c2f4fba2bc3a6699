// Package operator implements the operator driver (component E): the
// minimal dataflow-host contract this sink core needs, plus a reference
// driver that runs Sink.Step on a goroutine using timer-based
// activate-after rescheduling. No cooperative-dataflow-scheduler library
// appears anywhere in the retrieved corpus, so this one ambient concern is
// legitimately implemented on channels and time.Timer rather than an
// imported scheduler -- the channel/timer idiom itself still mirrors the
// teacher's client-internal broker loop goroutines
// (pkg/kgo/broker.go's request/response pump).
package operator

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cdcsink/kafkasink/pkg/encode"
	"github.com/cdcsink/kafkasink/pkg/sinkcore"
	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// InputSource supplies newly encoded batches and the current input
// frontier. The real implementation would be the encoder stage (component
// A) fed by the dataflow host's exchange channel; a test or embedding
// host can implement this directly.
type InputSource interface {
	// Poll returns whatever the encoder has drained since the last call,
	// and the current input frontier as reported by the host.
	Poll(ctx context.Context) ([]encode.EncodedBatch, sinktime.Frontier, error)
}

// DurabilityFrontierSource reports one upstream dependency's durability
// frontier.
type DurabilityFrontierSource interface {
	DurabilityFrontier() sinktime.Frontier
}

// Activator lets the sink ask to be woken again after a delay, mirroring
// the teacher's cooperative "activate_after" idiom.
type Activator interface {
	ActivateAfter(d time.Duration)
}

// FrontierPublisher registers a sink's write frontier with the host so
// upstream compaction can observe it.
type FrontierPublisher interface {
	PublishWriteFrontier(sinkID string, wf *sinkcore.WriteFrontier)
}

// ShutdownToken is owned by the host; dropping it (calling Release) must
// set the sink's shutdown flag, matching "dropping the token sets it."
type ShutdownToken struct {
	flag *sinkcore.ShutdownFlag
}

// NewShutdownToken binds a token to a sink's shutdown flag.
func NewShutdownToken(flag *sinkcore.ShutdownFlag) *ShutdownToken {
	return &ShutdownToken{flag: flag}
}

// Release sets the underlying shutdown flag. Idempotent.
func (t *ShutdownToken) Release() { t.flag.Set() }

// timerActivator is the reference Activator: a channel fed by a
// goroutine-owned timer.
type timerActivator struct {
	wake chan struct{}
}

func newTimerActivator() *timerActivator {
	return &timerActivator{wake: make(chan struct{}, 1)}
}

func (a *timerActivator) ActivateAfter(d time.Duration) {
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		<-t.C
		select {
		case a.wake <- struct{}{}:
		default:
		}
	}()
}

func (a *timerActivator) notify() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Driver runs one Sink to quiescence or shutdown, matching spec.md §4.E's
// "long-running coroutine-like function returning a boolean" integration
// shape, adapted to a goroutine-plus-channel idiom since Go has no
// first-class coroutine suspension point.
type Driver struct {
	sinkID       string
	sink         *sinkcore.Sink
	input        InputSource
	deps         []DurabilityFrontierSource
	publisher    FrontierPublisher
	activator    *timerActivator
	pendingInput chan struct{}

	mu      sync.Mutex
	running bool
}

// NewDriver wires a Sink to its host-contract collaborators.
func NewDriver(sinkID string, sink *sinkcore.Sink, input InputSource, deps []DurabilityFrontierSource, publisher FrontierPublisher) *Driver {
	d := &Driver{
		sinkID:       sinkID,
		sink:         sink,
		input:        input,
		deps:         deps,
		publisher:    publisher,
		activator:    newTimerActivator(),
		pendingInput: make(chan struct{}, 1),
	}
	if publisher != nil {
		publisher.PublishWriteFrontier(sinkID, sink.WriteFrontier())
	}
	return d
}

// NotifyInput wakes the driver immediately when the host has new input
// ready, independent of any pending activate-after timer.
func (d *Driver) NotifyInput() {
	select {
	case d.pendingInput <- struct{}{}:
	default:
	}
}

// Run drives the sink's Step loop until it reports Done or ctx is
// cancelled. It is meant to be called on its own goroutine by the host.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	for {
		batches, frontier, err := d.input.Poll(ctx)
		if err != nil {
			return err
		}

		durability := make([]sinktime.Frontier, 0, len(d.deps))
		for _, dep := range d.deps {
			durability = append(durability, dep.DurabilityFrontier())
		}

		res, stepErr := d.sink.Step(ctx, sinkcore.StepInput{
			InputFrontier:       frontier,
			DurabilityFrontiers: durability,
			NewBatches:          batches,
		})
		if stepErr != nil {
			return stepErr
		}
		if res.Done {
			return nil
		}

		d.activator.ActivateAfter(res.RescheduleAfter)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.activator.wake:
		case <-d.pendingInput:
		}
	}
}

// ActiveWriter reports whether workerIdx is the single active writer for
// sinkID, using an FNV-1a hash in place of the dataflow host's internal
// exchange-pact hash (none of which is represented as an importable
// library in the retrieved corpus).
func ActiveWriter(sinkID string, workerIdx, workerCount int) bool {
	if workerCount <= 0 {
		return workerIdx == 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sinkID))
	return int(h.Sum32()%uint32(workerCount)) == workerIdx
}
