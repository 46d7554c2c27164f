package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec serializes plain Go structs. It replaces Connect's default
// protobuf JSON codec under the same name.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "unmarshal message")
	}
	return nil
}
