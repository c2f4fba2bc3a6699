// Package testkafka provides an in-memory, deterministic double of the
// transactional producer facade and its broker topics, used only by this
// repository's own tests. It mirrors the teacher's delivery-callback
// pattern (SinkProducerContext.delivery in the original source) without
// opening a real network connection, in the spirit of the testify-based
// test doubles used across joeycumines-go-utilpkg's sub-modules.
package testkafka

import (
	"context"
	"sync"

	"github.com/cdcsink/kafkasink/pkg/kafkatxn"
	"github.com/cdcsink/kafkasink/pkg/retry"
)

// Message is one record observed on a topic, in append order.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
	// TxnID groups this message with the transaction epoch that produced
	// it; zero if produced outside a transaction.
	TxnID int
}

// Broker records every committed message per topic and lets tests script
// transient failures.
type Broker struct {
	mu       sync.Mutex
	messages []Message
	// uncommitted holds records sent during a transaction that has not
	// yet committed; aborting drops them.
	uncommitted []Message
	inTxn       bool
	txnEpoch    int

	// FailSendOnce, FailCommitOnce and FailAbortOnce, if non-nil, are
	// returned by the next call of that operation and then cleared.
	FailSendOnce         error
	FailCommitOnce       error
	FailAbortOnce        error
	RequiresAbort        bool
	RequiresAbortOnBegin bool
	initCalled           bool
	beginCalls           int
	commitCalls          int
	abortCalls           int
	flushCalls           int
}

// NewBroker constructs an empty fake broker.
func NewBroker() *Broker { return &Broker{} }

// Messages returns a snapshot of every committed message, in commit order.
func (b *Broker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Broker) MessagesForTopic(topic string) []Message {
	var out []Message
	for _, m := range b.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Producer is a kafkatxn.Producer backed by a Broker.
type Producer struct {
	broker     *Broker
	onShutdown func()
}

// NewProducer wires a facade to broker, invoking onShutdown exactly as the
// real delivery callback would on a send failure.
func NewProducer(broker *Broker, onShutdown func()) *Producer {
	return &Producer{broker: broker, onShutdown: onShutdown}
}

var _ kafkatxn.Producer = (*Producer)(nil)

func (p *Producer) InitTransactions(ctx context.Context) error {
	p.broker.mu.Lock()
	defer p.broker.mu.Unlock()
	p.broker.initCalled = true
	return nil
}

type requiresAbortError struct{}

func (requiresAbortError) Error() string          { return "testkafka: transaction requires abort" }
func (requiresAbortError) TxnRequiresAbort() bool { return true }

func (p *Producer) BeginTransaction(ctx context.Context) error {
	b := p.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.RequiresAbortOnBegin {
		b.RequiresAbortOnBegin = false
		return requiresAbortError{}
	}
	b.beginCalls++
	b.inTxn = true
	b.txnEpoch++
	b.uncommitted = nil
	return nil
}

func (p *Producer) CommitTransaction(ctx context.Context) error {
	b := p.broker
	b.mu.Lock()
	if err := consumeOnce(&b.FailCommitOnce); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.RequiresAbort {
		b.RequiresAbort = false
		b.mu.Unlock()
		return requiresAbortError{}
	}
	b.commitCalls++
	b.messages = append(b.messages, b.uncommitted...)
	b.uncommitted = nil
	b.inTxn = false
	b.mu.Unlock()
	return nil
}

func (p *Producer) AbortTransaction(ctx context.Context) error {
	b := p.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := consumeOnce(&b.FailAbortOnce); err != nil {
		return err
	}
	b.abortCalls++
	b.uncommitted = nil
	b.inTxn = false
	return nil
}

func (p *Producer) Flush(ctx context.Context) error {
	p.broker.mu.Lock()
	p.broker.flushCalls++
	p.broker.mu.Unlock()
	return nil
}

func (p *Producer) Send(ctx context.Context, rec kafkatxn.Record) error {
	b := p.broker
	b.mu.Lock()
	if err := consumeOnce(&b.FailSendOnce); err != nil {
		b.mu.Unlock()
		if p.onShutdown != nil && retry.Classify(err) == retry.KindFatal {
			p.onShutdown()
		}
		return err
	}
	msg := Message{Topic: rec.Topic, Key: rec.Key, Value: rec.Value}
	if b.inTxn {
		msg.TxnID = b.txnEpoch
		b.uncommitted = append(b.uncommitted, msg)
	} else {
		b.messages = append(b.messages, msg)
	}
	b.mu.Unlock()
	return nil
}

func (p *Producer) InFlightCount() int64 { return 0 }

func consumeOnce(slot *error) error {
	if *slot == nil {
		return nil
	}
	err := *slot
	*slot = nil
	return err
}
