package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned for frames that are neither an object nor an array.
var ErrMalformedFrame = errors.New("malformed frame")

// DecodeFrame normalizes a client frame into a sequence of events.
// A frame is a single event object or an array of them. Array elements that
// are not objects, or objects without a string "m", are skipped.
func DecodeFrame(raw []byte) ([]Inbound, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrMalformedFrame
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
	case '{':
		if !json.Valid(trimmed) {
			return nil, ErrMalformedFrame
		}
		items = []json.RawMessage{trimmed}
	default:
		return nil, ErrMalformedFrame
	}

	events := make([]Inbound, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var head struct {
			M *string `json:"m"`
		}
		if err := json.Unmarshal(item, &head); err != nil || head.M == nil {
			continue
		}
		events = append(events, Inbound{
			Kind: ParseKind(*head.M),
			Type: *head.M,
			Raw:  item,
		})
	}
	return events, nil
}

// EncodeFrame serializes events into the outbound envelope (a JSON array).
func EncodeFrame(events ...any) ([]byte, error) {
	if events == nil {
		events = []any{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}
