package collaboration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"collabd/internal/models"
)

// ErrUnknownMessageType is returned by ParseCommand for a well-formed frame
// whose type is not a client command. The router logs and drops these.
var ErrUnknownMessageType = errors.New("unknown message type")

// ProtocolError describes an unparseable frame or a command missing a
// required field. It is reported to the sender as an ERROR message.
type ProtocolError struct {
	Reason  string
	Details string
}

func (e *ProtocolError) Error() string {
	if e.Details == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Details
}

// Command is the closed set of client requests. Only this package can add
// variants, and Directory.dispatch switches over all of them.
type Command interface {
	command()
}

type JoinCommand struct {
	DocumentID string
}

type LeaveCommand struct {
	DocumentID string
}

type EditCommand struct {
	DocumentID string
	Payload    json.RawMessage
}

type CursorCommand struct {
	DocumentID string
	Cursor     models.CursorData
}

type HeartbeatCommand struct {
	ClientTimestamp json.RawMessage
}

func (JoinCommand) command()      {}
func (LeaveCommand) command()     {}
func (EditCommand) command()      {}
func (CursorCommand) command()    {}
func (HeartbeatCommand) command() {}

// ParseCommand decodes one inbound frame into a Command.
func ParseCommand(frame []byte) (Command, error) {
	// encoding/json passes invalid UTF-8 through inside raw payloads, and
	// those bytes would be relayed to every participant as a text frame.
	if !utf8.Valid(frame) {
		return nil, &ProtocolError{Reason: "invalid message format", Details: "frame is not valid UTF-8"}
	}

	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ProtocolError{Reason: "invalid message format", Details: err.Error()}
	}
	if env.Type == "" {
		return nil, &ProtocolError{Reason: "invalid message format", Details: "missing type"}
	}

	switch env.Type {
	case models.MessageTypeDocumentOpen:
		if env.DocumentID == "" {
			return nil, missingField(env.Type, "document_id")
		}
		return JoinCommand{DocumentID: env.DocumentID}, nil

	case models.MessageTypeDocumentClose:
		if env.DocumentID == "" {
			return nil, missingField(env.Type, "document_id")
		}
		return LeaveCommand{DocumentID: env.DocumentID}, nil

	case models.MessageTypeDocumentEdit:
		if env.DocumentID == "" {
			return nil, missingField(env.Type, "document_id")
		}
		if isEmptyJSON(env.EditData) {
			return nil, missingField(env.Type, "edit_data")
		}
		return EditCommand{DocumentID: env.DocumentID, Payload: env.EditData}, nil

	case models.MessageTypeDocumentCursor:
		if env.DocumentID == "" {
			return nil, missingField(env.Type, "document_id")
		}
		if env.CursorData == nil {
			return nil, missingField(env.Type, "cursor_data")
		}
		return CursorCommand{DocumentID: env.DocumentID, Cursor: *env.CursorData}, nil

	case models.MessageTypeHeartbeat:
		if isEmptyJSON(env.Timestamp) {
			return nil, missingField(env.Type, "timestamp")
		}
		return HeartbeatCommand{ClientTimestamp: env.Timestamp}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
}

func missingField(t models.MessageType, field string) *ProtocolError {
	return &ProtocolError{
		Reason:  "missing required field",
		Details: fmt.Sprintf("%s requires %s", t, field),
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
