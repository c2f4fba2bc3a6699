package encode

import (
	"github.com/hamba/avro/v2"
)

// AvroEncoder encodes rows against a pair of pre-parsed Avro schemas for
// keys and values. hamba/avro is an ecosystem pick (not present in the
// retrieved example corpus) since no Avro library appears anywhere in the
// corpus; see DESIGN.md for the justification.
type AvroEncoder struct {
	keySchema   avro.Schema
	valueSchema avro.Schema
}

// NewAvroEncoder parses the given key/value Avro schema documents.
func NewAvroEncoder(keySchemaJSON, valueSchemaJSON string) (*AvroEncoder, error) {
	keySchema, err := avro.Parse(keySchemaJSON)
	if err != nil {
		return nil, err
	}
	valueSchema, err := avro.Parse(valueSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &AvroEncoder{keySchema: keySchema, valueSchema: valueSchema}, nil
}

func (AvroEncoder) FormatName() string { return "avro" }

func (e *AvroEncoder) EncodeKeyUnchecked(row Row) []byte {
	b, err := avro.Marshal(e.keySchema, row)
	if err != nil {
		panic(err)
	}
	return b
}

func (e *AvroEncoder) EncodeValueUnchecked(row Row) []byte {
	b, err := avro.Marshal(e.valueSchema, row)
	if err != nil {
		panic(err)
	}
	return b
}
