package sinkcore

import (
	"strconv"

	"github.com/cdcsink/kafkasink/pkg/sinktime"
)

// ConsistencyConfig configures the auxiliary consistency topic. A nil
// *ConsistencyConfig on Sink means no consistency topic: BEGIN/END markers
// are never emitted and maybe_emit_progress only advances WriteFrontier in
// memory (LatestProgressTs then moves only with committed batches).
type ConsistencyConfig struct {
	Topic    string
	SchemaID string
}

// controlStatus is the status field of a ControlRecord.
type controlStatus string

const (
	controlBegin controlStatus = "BEGIN"
	controlEnd   controlStatus = "END"
)

// ControlRecord is the consistency-topic message shape, bit-compatible in
// field set with the Debezium-style transaction metadata topic this system
// reads on restart. It is serialized through the same encode.Codec as the
// data rows -- usually JSONEncoder, since the control topic is a small,
// low-volume, schema-stable side channel -- selectable by configuration.
type ControlRecord struct {
	SchemaID      string  `json:"schema_id"`
	TopicPrefix   string  `json:"topic_prefix"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	MessageCount  *uint64 `json:"message_count"`
}

func beginRecord(schemaID, topicPrefix string, t sinktime.Timestamp) ControlRecord {
	return ControlRecord{
		SchemaID:      schemaID,
		TopicPrefix:   topicPrefix,
		TransactionID: formatTimestamp(t),
		Status:        string(controlBegin),
	}
}

func endRecord(schemaID, topicPrefix string, t sinktime.Timestamp, count *uint64) ControlRecord {
	return ControlRecord{
		SchemaID:      schemaID,
		TopicPrefix:   topicPrefix,
		TransactionID: formatTimestamp(t),
		Status:        string(controlEnd),
		MessageCount:  count,
	}
}

func formatTimestamp(t sinktime.Timestamp) string {
	return strconv.FormatUint(uint64(t), 10)
}
