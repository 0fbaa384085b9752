package syncproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sstrand/matchpoint/internal/event"
	"github.com/sstrand/matchpoint/internal/projection"
)

// Command identifies a remote control message from the secondary device.
type Command string

const (
	CmdIncrementP1 Command = "incrementP1"
	CmdIncrementP2 Command = "incrementP2"
	CmdHighlight   Command = "highlight"
	CmdEndGame     Command = "endGame"
	CmdEndMatch    Command = "endMatch"
	CmdRequestSync Command = "requestSync"
)

// Known reports whether the command is recognized by this protocol
// version. Unknown commands are logged and ignored by the receiver.
func (c Command) Known() bool {
	switch c {
	case CmdIncrementP1, CmdIncrementP2, CmdHighlight,
		CmdEndGame, CmdEndMatch, CmdRequestSync:
		return true
	}
	return false
}

// ErrMalformed is returned when an inbound payload is missing required
// fields. The entire payload must be discarded; prior state is retained.
var ErrMalformed = errors.New("malformed sync payload")

// ErrUnknownCommand is returned for an unrecognized command string.
var ErrUnknownCommand = errors.New("unknown command")

// Kind discriminates decoded inbound messages.
type Kind int

const (
	// KindSnapshot is a full state snapshot from the authoritative device.
	KindSnapshot Kind = iota + 1
	// KindCommand is a control message from the secondary device.
	KindCommand
	// KindConfirmation is the highlight fast-path confirmation, sent
	// independently of full snapshot delivery.
	KindConfirmation
)

// Message is an inbound payload decoded into its tagged variant.
// Exactly one of Snapshot / Command / confirmation fields is meaningful,
// selected by Kind.
type Message struct {
	Kind               Kind
	Snapshot           *Snapshot
	Command            Command
	HighlightConfirmed bool
	HighlightCount     int
}

// Snapshot is the typed form of a wire snapshot: the authoritative
// device's full projected state at one moment. Receivers replace their
// cached state with it wholesale - last snapshot wins, no merging.
type Snapshot struct {
	PlayerOneScore      int
	PlayerTwoScore      int
	PlayerOneGames      int
	PlayerTwoGames      int
	IsRecording         bool
	ServingPlayer       event.Player
	HighlightCount      int
	HasPendingHighlight bool

	// Optional scalar fields.
	CurrentGameFirstServer event.Player
	RecordingStartTime     int64 // epoch seconds, 0 when not recording
	PlayerOneName          string
	PlayerTwoName          string

	// Composite fields, carried as opaque blobs on the wire.
	CompletedGames    []projection.GameResult
	CurrentGamePoints []projection.PointRecord
	History           []projection.MatchResult
}

// SnapshotFromState maps the projected state onto the wire snapshot.
func SnapshotFromState(s projection.State) Snapshot {
	var recStart int64
	if !s.RecordingStartedAt.IsZero() {
		recStart = s.RecordingStartedAt.Unix()
	}

	return Snapshot{
		PlayerOneScore:         s.PlayerOneScore,
		PlayerTwoScore:         s.PlayerTwoScore,
		PlayerOneGames:         s.PlayerOneGames,
		PlayerTwoGames:         s.PlayerTwoGames,
		IsRecording:            s.IsRecording,
		ServingPlayer:          s.ServingPlayer,
		HighlightCount:         len(s.HighlightClips),
		HasPendingHighlight:    s.PendingHighlight != nil,
		CurrentGameFirstServer: s.CurrentGameFirstServer,
		RecordingStartTime:     recStart,
		PlayerOneName:          s.PlayerOneName,
		PlayerTwoName:          s.PlayerTwoName,
		CompletedGames:         s.CompletedGames,
		CurrentGamePoints:      s.CurrentGamePoints,
		History:                s.History,
	}
}

// Required scalar keys of a snapshot payload. A payload missing any of
// them is malformed and discarded whole.
var requiredScalars = []string{
	"playerOneScore", "playerTwoScore",
	"playerOneGames", "playerTwoGames",
	"isRecording", "servingPlayer",
	"highlightCount", "hasPendingHighlight",
}

// EncodeSnapshot serializes a snapshot to the flat wire map.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	m := map[string]any{
		"playerOneScore":      snap.PlayerOneScore,
		"playerTwoScore":      snap.PlayerTwoScore,
		"playerOneGames":      snap.PlayerOneGames,
		"playerTwoGames":      snap.PlayerTwoGames,
		"isRecording":         snap.IsRecording,
		"servingPlayer":       int(snap.ServingPlayer),
		"highlightCount":      snap.HighlightCount,
		"hasPendingHighlight": snap.HasPendingHighlight,
	}

	if snap.CurrentGameFirstServer.Valid() {
		m["currentGameFirstServer"] = int(snap.CurrentGameFirstServer)
	}
	if snap.RecordingStartTime != 0 {
		m["recordingStartTime"] = snap.RecordingStartTime
	}
	if snap.PlayerOneName != "" {
		m["playerOneName"] = snap.PlayerOneName
	}
	if snap.PlayerTwoName != "" {
		m["playerTwoName"] = snap.PlayerTwoName
	}

	for key, v := range map[string]any{
		"currentMatchGames": snap.CompletedGames,
		"currentGamePoints": snap.CurrentGamePoints,
		"matchHistory":      snap.History,
	} {
		blob, err := marshalBlob(v)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot %s: %w", key, err)
		}
		m[key] = blob
	}

	return marshalMap(m)
}

// EncodeCommand serializes a control message.
func EncodeCommand(c Command) ([]byte, error) {
	return marshalMap(map[string]any{"command": string(c)})
}

// EncodeConfirmation serializes the highlight fast-path confirmation.
func EncodeConfirmation(highlightCount int) ([]byte, error) {
	return marshalMap(map[string]any{
		"highlightConfirmed": true,
		"highlightCount":     highlightCount,
	})
}

// Decode parses an inbound payload into its tagged variant, validating
// required fields at the boundary. On any error the caller must discard
// the payload and keep prior state.
func Decode(data []byte) (Message, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if raw, ok := m["command"]; ok {
		var cmd string
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return Message{}, fmt.Errorf("%w: command: %v", ErrMalformed, err)
		}
		c := Command(cmd)
		if !c.Known() {
			return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		return Message{Kind: KindCommand, Command: c}, nil
	}

	// A confirmation carries highlightConfirmed without the snapshot
	// scalars; check before snapshot validation.
	if raw, ok := m["highlightConfirmed"]; ok {
		if _, hasScore := m["playerOneScore"]; !hasScore {
			var confirmed bool
			if err := json.Unmarshal(raw, &confirmed); err != nil {
				return Message{}, fmt.Errorf("%w: highlightConfirmed: %v", ErrMalformed, err)
			}
			count := 0
			if rawCount, ok := m["highlightCount"]; ok {
				if err := json.Unmarshal(rawCount, &count); err != nil {
					return Message{}, fmt.Errorf("%w: highlightCount: %v", ErrMalformed, err)
				}
			}
			return Message{
				Kind:               KindConfirmation,
				HighlightConfirmed: confirmed,
				HighlightCount:     count,
			}, nil
		}
	}

	snap, err := decodeSnapshot(m)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindSnapshot, Snapshot: snap}, nil
}

func decodeSnapshot(m map[string]json.RawMessage) (*Snapshot, error) {
	for _, key := range requiredScalars {
		if _, ok := m[key]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, key)
		}
	}

	var snap Snapshot
	fields := []struct {
		key  string
		dest any
	}{
		{"playerOneScore", &snap.PlayerOneScore},
		{"playerTwoScore", &snap.PlayerTwoScore},
		{"playerOneGames", &snap.PlayerOneGames},
		{"playerTwoGames", &snap.PlayerTwoGames},
		{"isRecording", &snap.IsRecording},
		{"servingPlayer", &snap.ServingPlayer},
		{"highlightCount", &snap.HighlightCount},
		{"hasPendingHighlight", &snap.HasPendingHighlight},
	}
	for _, f := range fields {
		if err := json.Unmarshal(m[f.key], f.dest); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.key, err)
		}
	}

	// Optional scalars.
	if raw, ok := m["currentGameFirstServer"]; ok {
		if err := json.Unmarshal(raw, &snap.CurrentGameFirstServer); err != nil {
			return nil, fmt.Errorf("%w: currentGameFirstServer: %v", ErrMalformed, err)
		}
	}
	if raw, ok := m["recordingStartTime"]; ok {
		if err := json.Unmarshal(raw, &snap.RecordingStartTime); err != nil {
			return nil, fmt.Errorf("%w: recordingStartTime: %v", ErrMalformed, err)
		}
	}
	if raw, ok := m["playerOneName"]; ok {
		if err := json.Unmarshal(raw, &snap.PlayerOneName); err != nil {
			return nil, fmt.Errorf("%w: playerOneName: %v", ErrMalformed, err)
		}
	}
	if raw, ok := m["playerTwoName"]; ok {
		if err := json.Unmarshal(raw, &snap.PlayerTwoName); err != nil {
			return nil, fmt.Errorf("%w: playerTwoName: %v", ErrMalformed, err)
		}
	}

	// Composite blobs. A bad blob poisons the whole payload - no
	// partial snapshot is ever surfaced.
	if err := unmarshalBlob(m, "currentMatchGames", &snap.CompletedGames); err != nil {
		return nil, err
	}
	if err := unmarshalBlob(m, "currentGamePoints", &snap.CurrentGamePoints); err != nil {
		return nil, err
	}
	if err := unmarshalBlob(m, "matchHistory", &snap.History); err != nil {
		return nil, err
	}

	return &snap, nil
}

// marshalBlob serializes a composite value to its opaque wire form.
// []byte renders as base64 inside the outer JSON map.
func marshalBlob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

func unmarshalBlob(m map[string]json.RawMessage, key string, dest any) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	var blob []byte
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
