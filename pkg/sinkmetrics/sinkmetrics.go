// Package sinkmetrics registers the per-sink Prometheus counters and
// gauges named in the spec, all labeled by (topic, sink_id, worker_id).
// Metrics handles are scoped to the sink's lifetime: Close removes their
// entries from the registry, mirroring the DeleteOnDropCounter/Gauge
// pattern of the original Rust source's ore::metrics wrapper -- Go has no
// destructor to hook, so callers must call Close explicitly on shutdown.
package sinkmetrics

import "github.com/prometheus/client_golang/prometheus"

// Base holds the registered vector metrics shared by every sink instance
// on a given process. Construct one per process and derive a Sink from it
// per (topic, sink_id, worker_id).
type Base struct {
	messagesSent          *prometheus.CounterVec
	messageSendErrors     *prometheus.CounterVec
	messageDeliveryErrors *prometheus.CounterVec
	rowsQueued            *prometheus.GaugeVec
	messagesInFlight      *prometheus.GaugeVec
}

// NewBase registers the vector metrics against reg.
func NewBase(reg prometheus.Registerer) (*Base, error) {
	labels := []string{"topic", "sink_id", "worker_id"}
	b := &Base{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sink", Subsystem: "kafka", Name: "messages_sent_total",
			Help: "Number of records successfully handed to the broker client.",
		}, labels),
		messageSendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sink", Subsystem: "kafka", Name: "message_send_errors_total",
			Help: "Number of Send attempts that returned an error (including retried ones).",
		}, labels),
		messageDeliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sink", Subsystem: "kafka", Name: "message_delivery_errors_total",
			Help: "Number of per-message delivery callback failures.",
		}, labels),
		rowsQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sink", Subsystem: "kafka", Name: "rows_queued",
			Help: "Encoded rows currently buffered in the pending/ready maps.",
		}, labels),
		messagesInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sink", Subsystem: "kafka", Name: "messages_in_flight",
			Help: "Records sent to the broker client but not yet acknowledged.",
		}, labels),
	}
	for _, c := range []prometheus.Collector{
		b.messagesSent, b.messageSendErrors, b.messageDeliveryErrors,
		b.rowsQueued, b.messagesInFlight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Sink is the per-(topic,sink_id,worker_id) metrics handle passed to the
// state machine.
type Sink struct {
	base   *Base
	labels prometheus.Labels
}

// For derives a scoped metrics handle for one sink instance.
func (b *Base) For(topic, sinkID, workerID string) *Sink {
	return &Sink{base: b, labels: prometheus.Labels{"topic": topic, "sink_id": sinkID, "worker_id": workerID}}
}

func (s *Sink) MessagesSentInc()          { s.base.messagesSent.With(s.labels).Inc() }
func (s *Sink) MessageSendErrorsInc()     { s.base.messageSendErrors.With(s.labels).Inc() }
func (s *Sink) MessageDeliveryErrorsInc() { s.base.messageDeliveryErrors.With(s.labels).Inc() }
func (s *Sink) RowsQueuedInc()            { s.base.rowsQueued.With(s.labels).Inc() }
func (s *Sink) RowsQueuedDec()            { s.base.rowsQueued.With(s.labels).Dec() }
func (s *Sink) MessagesInFlightSet(v float64) {
	s.base.messagesInFlight.With(s.labels).Set(v)
}

// Close deletes this sink's entries from every vector, per spec ("on
// shutdown, their entries are removed from the registry").
func (s *Sink) Close() {
	s.base.messagesSent.Delete(s.labels)
	s.base.messageSendErrors.Delete(s.labels)
	s.base.messageDeliveryErrors.Delete(s.labels)
	s.base.rowsQueued.Delete(s.labels)
	s.base.messagesInFlight.Delete(s.labels)
}
