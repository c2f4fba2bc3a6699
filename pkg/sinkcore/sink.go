package sinkcore

import (
	"context"
	"fmt"
	"time"

	"github.com/cdcsink/kafkasink/pkg/encode"
	"github.com/cdcsink/kafkasink/pkg/kafkatxn"
	"github.com/cdcsink/kafkasink/pkg/retry"
	"github.com/cdcsink/kafkasink/pkg/sinkmetrics"
	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// repollDelay and flushWaitDelay are the two reschedule intervals named in
// spec.md §4.D step 10.
const (
	repollDelay    = 100 * time.Millisecond
	flushWaitDelay = 5 * time.Second
)

// Logger is the subset of sinklog.Logger this package depends on, kept as
// an interface so tests can pass a no-op.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Config assembles one Sink. IsActiveWriter is decided once, by the
// operator driver's worker election, before construction.
type Config struct {
	SinkID         string
	Topic          string
	TopicPrefix    string
	ExactlyOnce    bool
	Consistency    *ConsistencyConfig
	GateTs         *sinktime.Timestamp
	IsActiveWriter bool
	Producer       kafkatxn.Producer
	ControlCodec   encode.Codec
	Metrics        *sinkmetrics.Sink
	Logger         Logger
	CallTimeout    time.Duration
}

// Sink is the per-(sink_id, worker) state machine. It is not safe for
// concurrent use: exactly one goroutine -- the operator driver -- calls
// Step at a time, matching the single-threaded cooperative scheduling
// model described by the operator driver component.
type Sink struct {
	id             string
	topic          string
	topicPrefix    string
	exactlyOnce    bool
	consistency    *ConsistencyConfig
	gateTs         *sinktime.Timestamp
	isActiveWriter bool
	producer       kafkatxn.Producer
	controlCodec   encode.Codec
	metrics        *sinkmetrics.Sink
	log            Logger
	callTimeout    time.Duration

	state      SendState
	pending    pendingMap
	ready      []readyBatch
	writeFront WriteFrontier
	shutdown   ShutdownFlag

	latestProgressTs   sinktime.Timestamp
	activeWorkerLatch  bool
	initTransactionsOK bool
}

// New constructs a Sink. Non-active-writer sinks hold an empty write
// frontier forever and their Step is a permanent no-op, per spec.md §3's
// "Inactive workers hold an empty write-frontier forever."
func New(cfg Config) *Sink {
	s := &Sink{
		id:             cfg.SinkID,
		topic:          cfg.Topic,
		topicPrefix:    cfg.TopicPrefix,
		exactlyOnce:    cfg.ExactlyOnce,
		consistency:    cfg.Consistency,
		gateTs:         cfg.GateTs,
		isActiveWriter: cfg.IsActiveWriter,
		producer:       cfg.Producer,
		controlCodec:   cfg.ControlCodec,
		metrics:        cfg.Metrics,
		log:            cfg.Logger,
		callTimeout:    cfg.CallTimeout,
		pending:        make(pendingMap),
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.callTimeout <= 0 {
		s.callTimeout = 5 * time.Second
	}
	if cfg.GateTs != nil {
		s.latestProgressTs = *cfg.GateTs
	} else {
		s.latestProgressTs = sinktime.TimestampMin
	}
	return s
}

// WriteFrontier exposes the shared cell for the operator driver to
// register with the host under sink_id.
func (s *Sink) WriteFrontier() *WriteFrontier { return &s.writeFront }

// Shutdown exposes the shared shutdown flag; the ShutdownToken the operator
// driver hands to the host sets this on drop.
func (s *Sink) Shutdown() *ShutdownFlag { return &s.shutdown }

// LatestProgressTs reports the most recently emitted progress timestamp.
func (s *Sink) LatestProgressTs() sinktime.Timestamp { return s.latestProgressTs }

// StepInput is what the operator driver hands to Step on each activation.
type StepInput struct {
	// InputFrontier is this activation's current input frontier, as read
	// from the host. Empty means the stream has permanently closed.
	InputFrontier sinktime.Frontier
	// DurabilityFrontiers is one frontier per upstream dependency; Step
	// computes their meet itself (empty slice meets to "+infinity").
	DurabilityFrontiers []sinktime.Frontier
	// NewBatches is freshly encoded input arrived since the last
	// activation (the encoder's Drain output), not yet fuel-bounded at
	// this layer -- only the encoder enforces fuel, per spec.md §4.D
	// step 4's "fuel-bounded only for the encoder, not for this operator."
	NewBatches []encode.EncodedBatch
}

// StepResult tells the operator driver whether, and when, to reschedule.
type StepResult struct {
	// Done is true when the sink should not be activated again (shutdown
	// drain completed, or input and in-flight work are both exhausted).
	Done bool
	// RescheduleAfter is the activate-after delay when Done is false.
	RescheduleAfter time.Duration
}

// Step runs one activation of the per-activation algorithm described by
// spec.md §4.D. It returns the reschedule decision, or an error if a
// broker call escalated to shutdown (the caller should still treat a
// non-nil error as "stop calling Step"; the sink itself has already
// recorded the shutdown flag).
func (s *Sink) Step(ctx context.Context, in StepInput) (StepResult, error) {
	// Step 1: shutdown short-circuit.
	if s.shutdown.IsSet() {
		if s.producer != nil {
			_ = s.producer.Flush(ctx)
		}
		s.writeFront.Clear()
		return StepResult{Done: true}, nil
	}

	if !s.isActiveWriter {
		return StepResult{Done: true}, nil
	}

	// Step 2: read current input frontier. Single() panics on a
	// multi-element frontier, matching the data model's invariant.
	in.InputFrontier.Single()

	// Step 3: durability frontier is the meet across dependencies.
	durability := sinktime.MeetAll(in.DurabilityFrontiers)

	// Step 4: drain newly arrived input into PendingMap.
	if len(in.NewBatches) > 0 {
		s.activeWorkerLatch = true
	}
	for _, batch := range in.NewBatches {
		s.pending[batch.Time] = append(s.pending[batch.Time], batch.Rows...)
		if s.metrics != nil {
			for range batch.Rows {
				s.metrics.RowsQueuedInc()
			}
		}
	}
	if !in.InputFrontier.IsEmpty() {
		s.activeWorkerLatch = true
	}

	// Step 5: promote closed timestamps to ReadyQueue, ascending.
	for _, t := range closedKeysBelow(s.pending, in.InputFrontier, durability) {
		s.ready = append(s.ready, readyBatch{Time: t, Rows: s.pending[t]})
		delete(s.pending, t)
	}

	// Step 6: initialize transactions, transition Init -> Running.
	if s.state == StateInit && len(s.ready) > 0 {
		if s.exactlyOnce && !s.initTransactionsOK {
			if err := s.retryTxnOp(ctx, "init transactions", func() error { return s.producer.InitTransactions(ctx) }); err != nil {
				return s.fatal(ctx, err)
			}
			s.initTransactionsOK = true
		}
		s.state = StateRunning
	}

	// Step 7: drain loop.
	var anyProgressCandidate bool
	var latestCandidate sinktime.Timestamp
	for s.state == StateRunning && len(s.ready) > 0 {
		batch := s.ready[0]

		if err := s.drainOneBatch(ctx, batch); err != nil {
			return s.fatal(ctx, err)
		}

		s.ready = s.ready[1:]
		if s.metrics != nil {
			for range batch.Rows {
				s.metrics.RowsQueuedDec()
			}
		}
		anyProgressCandidate = true
		latestCandidate = batch.Time
	}

	// Step 8.
	if anyProgressCandidate && latestCandidate > s.latestProgressTs {
		s.latestProgressTs = latestCandidate
	}

	// Step 9.
	if err := s.maybeEmitProgress(ctx, in.InputFrontier); err != nil {
		return s.fatal(ctx, err)
	}

	// Step 10: reschedule decision.
	var inFlight int64
	if s.producer != nil {
		inFlight = s.producer.InFlightCount()
	}
	if s.metrics != nil {
		s.metrics.MessagesInFlightSet(float64(inFlight))
	}
	if len(s.pending) > 0 {
		return StepResult{RescheduleAfter: repollDelay}, nil
	}
	if inFlight > 0 {
		return StepResult{RescheduleAfter: flushWaitDelay}, nil
	}
	return StepResult{Done: true}, nil
}

// drainOneBatch runs steps 7.1-7.7 for a single closed timestamp.
func (s *Sink) drainOneBatch(ctx context.Context, batch readyBatch) error {
	if s.exactlyOnce {
		label := fmt.Sprintf("begin transaction T=%d", batch.Time)
		if err := s.retryTxnOp(ctx, label, func() error { return s.producer.BeginTransaction(ctx) }); err != nil {
			return err
		}
	}

	if s.consistency != nil {
		rec := beginRecord(s.consistency.SchemaID, s.topicPrefix, batch.Time)
		if err := s.sendControl(ctx, rec); err != nil {
			return fmt.Errorf("sinkcore: send BEGIN T=%d: %w", batch.Time, err)
		}
	}

	var totalSent uint64
	for _, row := range batch.Rows {
		for i := uint64(0); i < row.Count; i++ {
			rec := kafkatxn.Record{Topic: s.topic, Key: row.Key, Value: row.Value}
			err := retry.Do(ctx, func() error {
				sendErr := s.producer.Send(ctx, rec)
				if sendErr != nil && s.metrics != nil {
					s.metrics.MessageSendErrorsInc()
				}
				return sendErr
			})
			if err != nil {
				return fmt.Errorf("sinkcore: send T=%d: %w", batch.Time, err)
			}
			if s.metrics != nil {
				s.metrics.MessagesSentInc()
			}
			totalSent++
		}
	}

	if s.consistency != nil {
		count := totalSent
		rec := endRecord(s.consistency.SchemaID, s.topicPrefix, batch.Time, &count)
		if err := s.sendControl(ctx, rec); err != nil {
			return fmt.Errorf("sinkcore: send END T=%d: %w", batch.Time, err)
		}
	}

	if s.exactlyOnce {
		label := fmt.Sprintf("commit transaction T=%d", batch.Time)
		if err := s.retryTxnOp(ctx, label, func() error { return s.producer.CommitTransaction(ctx) }); err != nil {
			return err
		}
	}

	label := fmt.Sprintf("flush T=%d", batch.Time)
	if err := s.retryTxnOp(ctx, label, func() error { return s.producer.Flush(ctx) }); err != nil {
		return err
	}

	s.assertProgress(batch.Time)
	return nil
}

// retryTxnOp runs op under the shared retry policy. If the resulting error
// classifies as requiring abort, it drives AbortTransaction under its own
// retry policy before returning, escalating if abort itself fails. This is
// applied uniformly to every transactional broker call -- init, begin,
// commit, and flush -- matching the original's retry_on_txn_error wrapper,
// not just commit: any of them can observe the broker has fenced or
// otherwise poisoned the current transaction.
func (s *Sink) retryTxnOp(ctx context.Context, label string, op func() error) error {
	err := retry.Do(ctx, op)
	if err == nil {
		return nil
	}
	if retry.Classify(err) != retry.KindTxnRequiresAbort {
		return fmt.Errorf("sinkcore: %s: %w", label, err)
	}

	s.log.Warnf("%s requires abort: %v", label, err)
	if abortErr := retry.Do(ctx, func() error { return s.producer.AbortTransaction(ctx) }); abortErr != nil {
		return fmt.Errorf("sinkcore: abort transaction after %s required abort: %w", label, abortErr)
	}
	return fmt.Errorf("sinkcore: transaction aborted (%s required abort): %w", label, err)
}

// sendControl serializes and sends one control record to the consistency
// topic, retried the same as a data send.
func (s *Sink) sendControl(ctx context.Context, rec ControlRecord) error {
	key := []byte(s.topicPrefix)
	value := s.controlCodec.EncodeValueUnchecked(encode.Row(rec))
	out := kafkatxn.Record{Topic: s.consistency.Topic, Key: key, Value: value}
	return retry.Do(ctx, func() error { return s.producer.Send(ctx, out) })
}

// maybeEmitProgress implements spec.md §4.D's maybe_emit_progress.
func (s *Sink) maybeEmitProgress(ctx context.Context, inputFrontier sinktime.Frontier) error {
	if !s.activeWorkerLatch {
		return nil
	}

	inputVal, inputOK := inputFrontier.Single()
	pendingMin, pendingOK := minKey(s.pending)

	var minFrontier sinktime.Timestamp
	var haveMin bool
	switch {
	case inputOK && pendingOK:
		if inputVal < pendingMin {
			minFrontier, haveMin = inputVal, true
		} else {
			minFrontier, haveMin = pendingMin, true
		}
	case inputOK:
		minFrontier, haveMin = inputVal, true
	case pendingOK:
		minFrontier, haveMin = pendingMin, true
	}

	if !haveMin {
		s.writeFront.Clear()
		return nil
	}

	strict := minFrontier.SaturatingSub(1)

	if strict > s.latestProgressTs && s.consistency != nil {
		if s.exactlyOnce {
			label := fmt.Sprintf("begin progress transaction strict=%d", strict)
			if err := s.retryTxnOp(ctx, label, func() error { return s.producer.BeginTransaction(ctx) }); err != nil {
				return err
			}
		}

		rec := endRecord(s.consistency.SchemaID, s.topicPrefix, strict, nil)
		if err := s.sendControl(ctx, rec); err != nil {
			return fmt.Errorf("sinkcore: send progress END strict=%d: %w", strict, err)
		}

		if s.exactlyOnce {
			label := fmt.Sprintf("commit progress transaction strict=%d", strict)
			if err := s.retryTxnOp(ctx, label, func() error { return s.producer.CommitTransaction(ctx) }); err != nil {
				return err
			}
		}

		s.latestProgressTs = strict
	}

	s.assertProgress(strict)
	s.writeFront.Set(strict)
	return nil
}

// assertProgress is the write-frontier-regression fatal check run on
// every committed batch and inside maybe_emit_progress.
func (s *Sink) assertProgress(t sinktime.Timestamp) {
	if cur, ok := s.writeFront.Get(); ok && cur > t {
		panic(fmt.Errorf("%w: current=%d new=%d", ErrFrontierRegression, cur, t))
	}
}

// fatal trips the shutdown flag and clears the write frontier, matching
// "Non-retriable broker err -> Log + shutdown" and the user-visible
// contract that a shutdown sink clears its write frontier.
func (s *Sink) fatal(ctx context.Context, err error) (StepResult, error) {
	s.log.Errorf("sink %s shutting down: %v", s.id, err)
	s.shutdown.Set()
	s.writeFront.Clear()
	if s.producer != nil {
		_ = s.producer.Flush(ctx)
	}
	return StepResult{Done: true}, err
}
