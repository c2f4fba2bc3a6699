package encode

import "encoding/json"

// JSONEncoder encodes rows via encoding/json. Rows must already be
// JSON-marshalable (map[string]any, a struct, etc); this codec does not
// interpret relation schemas itself, matching the "pluggable Encoder
// capability" boundary named in the spec.
type JSONEncoder struct{}

// NewJSONEncoder builds the JSON row codec.
func NewJSONEncoder() *JSONEncoder { return &JSONEncoder{} }

func (JSONEncoder) FormatName() string { return "json" }

func (JSONEncoder) EncodeKeyUnchecked(row Row) []byte {
	return mustMarshal(row)
}

func (JSONEncoder) EncodeValueUnchecked(row Row) []byte {
	return mustMarshal(row)
}

func mustMarshal(row Row) []byte {
	b, err := json.Marshal(row)
	if err != nil {
		// Encoding a row the caller has already validated against its
		// schema is a programming error, not a retriable runtime error.
		panic(err)
	}
	return b
}
