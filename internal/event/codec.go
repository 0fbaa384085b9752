package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalPayload serializes a payload to JSON TEXT for storage.
// HTML escaping is disabled so stored payloads are byte-stable across
// encoders and safe for golden trace comparison.
func MarshalPayload(p Payload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", p.EventType(), err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// Unknown carries an event type this version does not recognize, with
// its payload held verbatim. Replay skips it; the raw bytes survive a
// marshal round trip so a newer reader loses nothing.
type Unknown struct {
	Type Type
	Raw  json.RawMessage
}

func (u Unknown) EventType() Type { return u.Type }

func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}
	return u.Raw, nil
}

// UnmarshalPayload parses stored JSON TEXT into the concrete payload for
// the given type. Unrecognized types decode into Unknown so a log
// written by a newer version still loads and replays; the projector
// ignores variants it does not know.
func UnmarshalPayload(t Type, data string) (Payload, error) {
	raw := []byte(data)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch t {
	case TypeMatchStarted:
		var p MatchStarted
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypePointScored:
		var p PointScored
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypeHighlightMarked:
		var p HighlightMarked
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypeHighlightAttributed:
		var p HighlightAttributed
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypeGameEnded:
		var p GameEnded
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypeMatchEnded:
		var p MatchEnded
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	case TypeEventUndone:
		var p Undone
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		return p, nil
	default:
		return Unknown{Type: t, Raw: json.RawMessage(raw)}, nil
	}
}
