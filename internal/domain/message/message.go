// Package message defines the tagged messages exchanged with the controller.
package message

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Inbound command tags.
const (
	TagPlay        = "Play"
	TagPause       = "Pause"
	TagSeek        = "Seek"
	TagRestartLoop = "RestartLoop"
)

// Outbound tags.
const (
	TagAck        = "Ack"
	TagStatus     = "Status"
	TagDiagnostic = "Diagnostic"
)

// Message is a tagged message, {"tag": ..., "data": ...} on the wire.
type Message struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data,omitempty"`
	Seq  uint64          `json:"seq,omitempty"` // Set on outbound messages
}

// New creates a message with data marshalled to JSON.
func New(tag string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s data", tag)
	}
	return &Message{Tag: tag, Data: raw}, nil
}

// MediaTarget addresses an element at a position in milliseconds.
type MediaTarget struct {
	ID   string  `json:"id"`
	Time float64 `json:"time"`
}

// SeekData is the payload of Seek.
type SeekData = MediaTarget

// RestartLoopData is the payload of RestartLoop.
type RestartLoopData struct {
	Audio MediaTarget `json:"audio"`
	Video MediaTarget `json:"video"`
}

// AckData is the payload of Ack.
type AckData struct {
	Tag string `json:"tag"`
}

// DiagnosticData is the payload of Diagnostic.
type DiagnosticData struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
