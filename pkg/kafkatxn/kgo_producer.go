package kafkatxn

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cdcsink/kafkasink/pkg/retry"
)

// Denylisted pass-through config keys, per spec: broker-statistics
// interval floods logs, isolation.level is a consumer-only knob.
var denylistedOptionKeys = map[string]struct{}{
	"statistics.interval.ms": {},
	"isolation.level":        {},
}

// ProducerConfig mirrors the "recognized configuration keys" in the spec
// that bear on producer construction.
type ProducerConfig struct {
	Addrs             []string
	Topic             string
	TopicPrefix       string
	ExactlyOnce       bool
	// Epoch, if non-empty, is appended to the transactional ID
	// ("<prefix>-<topic>-<epoch>") to avoid producer-fencing conflicts
	// when more than one sink instance can target the same topic; see
	// DESIGN.md for the open-question resolution.
	Epoch string
	// CallTimeout sets the broker transaction timeout (twice its value,
	// default 5s). It does not bound individual blocking facade calls;
	// those are bounded only by the caller's context.
	CallTimeout time.Duration
	// ConfigOptions is the pass-through map; denylisted keys are
	// dropped rather than erroring, matching the source's behavior.
	ConfigOptions map[string]string
	Logger        kgo.Logger
}

func (c ProducerConfig) transactionalID() string {
	id := c.TopicPrefix + "-" + c.Topic
	if c.Epoch != "" {
		id += "-" + c.Epoch
	}
	return id
}

func (c ProducerConfig) callTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return 5 * time.Second
	}
	return c.CallTimeout
}

// KgoProducer adapts a real *kgo.Client to the Producer facade. Blocking
// calls run on a bounded worker pool so a cancelled offload never blocks
// the cooperative scheduler thread that owns the sink state machine.
type KgoProducer struct {
	client      *kgo.Client
	offload     *semaphore.Weighted
	inFlight    int64
	shutdownSet func()
}

// NewKgoProducer builds the producer facade, constructing the underlying
// kgo.Client eagerly (per spec: "the broker producer is created eagerly
// at construction").
func NewKgoProducer(cfg ProducerConfig, onShutdown func()) (*KgoProducer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Addrs...),
		// Idempotent writes are the default in franz-go; left explicit
		// here to document the requirement from spec 4.B.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10 * time.Millisecond),
		// Large ceilings: no upstream backpressure exists, so a small
		// buffer would silently convert slow consumers into data loss.
		kgo.MaxBufferedRecords(10_000_000),
		kgo.MaxBufferedBytes(16 << 30),
	}
	if cfg.ExactlyOnce {
		opts = append(opts,
			kgo.TransactionalID(cfg.transactionalID()),
			kgo.TransactionTimeout(cfg.callTimeout()*2),
		)
	}
	if cfg.Logger != nil {
		opts = append(opts, kgo.WithLogger(cfg.Logger))
	}
	for k, v := range cfg.ConfigOptions {
		if _, skip := denylistedOptionKeys[k]; skip {
			continue
		}
		opts = append(opts, kgo.RawOption(k, v))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &KgoProducer{
		client:      client,
		offload:     semaphore.NewWeighted(16),
		shutdownSet: onShutdown,
	}, nil
}

// offloadBlocking runs fn on a worker-pool goroutine and waits for either
// its completion or ctx cancellation, surfacing cancellation as a
// retriable error per spec ("cancellation of the offload surfaces as a
// retriable canceled error").
func (p *KgoProducer) offloadBlocking(ctx context.Context, fn func() error) error {
	if err := p.offload.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.offload.Release(1)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan error, 1)
	g.Go(func() error {
		done <- fn()
		return nil
	})

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		return gctx.Err()
	}
}

func (p *KgoProducer) InitTransactions(ctx context.Context) error {
	// A metadata round trip checks that the brokers are reachable before
	// the state machine leaves Init. It does not load the producer ID /
	// transaction epoch; franz-go still loads those lazily on first use.
	return p.offloadBlocking(ctx, func() error {
		_, err := p.client.Request(ctx, new(kmsg.MetadataRequest))
		return err
	})
}

func (p *KgoProducer) BeginTransaction(ctx context.Context) error {
	return p.offloadBlocking(ctx, func() error {
		return p.client.BeginTransaction()
	})
}

func (p *KgoProducer) CommitTransaction(ctx context.Context) error {
	return p.offloadBlocking(ctx, func() error {
		if err := p.client.Flush(ctx); err != nil {
			return err
		}
		return p.client.EndTransaction(ctx, kgo.TryCommit)
	})
}

func (p *KgoProducer) AbortTransaction(ctx context.Context) error {
	return p.offloadBlocking(ctx, func() error {
		return p.client.EndTransaction(ctx, kgo.TryAbort)
	})
}

func (p *KgoProducer) Flush(ctx context.Context) error {
	return p.offloadBlocking(ctx, func() error {
		return p.client.Flush(ctx)
	})
}

// Send enqueues rec without waiting for broker acknowledgement. It must
// never block the caller: TryProduce fails a record immediately (calling
// its promise synchronously, before returning) rather than waiting for
// buffer space the way Produce does, so a full local buffer surfaces here
// as retry.ErrQueueFull for the caller's retry loop to back off on,
// instead of stalling the cooperative scheduler thread.
func (p *KgoProducer) Send(ctx context.Context, rec Record) error {
	r := &kgo.Record{Topic: rec.Topic, Key: rec.Key, Value: rec.Value}

	var immediate error
	var rejected bool

	atomic.AddInt64(&p.inFlight, 1)
	p.client.TryProduce(ctx, r, func(_ *kgo.Record, err error) {
		atomic.AddInt64(&p.inFlight, -1)
		if errors.Is(err, kgo.ErrMaxBuffered) {
			immediate, rejected = retry.ErrQueueFull, true
			return
		}
		if err != nil && p.shutdownSet != nil {
			p.shutdownSet()
		}
	})

	// The buffer-full rejection above runs synchronously on this
	// goroutine inside TryProduce, before it returns, so reading rejected
	// here is safe without further synchronization.
	if rejected {
		return immediate
	}
	return nil
}

func (p *KgoProducer) InFlightCount() int64 {
	return atomic.LoadInt64(&p.inFlight)
}

// Close releases the underlying client. It is not part of the Producer
// interface (the sink never needs to close the producer mid-lifetime) but
// is exposed for host-level teardown after shutdown.
func (p *KgoProducer) Close() { p.client.Close() }
