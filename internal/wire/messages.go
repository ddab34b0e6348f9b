package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message type tags.
const (
	TypeData   = "data"
	TypeStatus = "status"
)

// Error codes carried in error replies.
const (
	CodeInvalidJSON     = "invalid_json"
	CodeAuthFailed      = "auth_failed"
	CodeUnknownType     = "unknown_type"
	CodeInvalidStatus   = "invalid_status"
	CodeDataStoreFailed = "data_store_failed"
	CodeBufferOverflow  = "buffer_overflow"
	CodeInternalError   = "internal_error"
)

// Message is the tagged union of inbound device messages.
// Concrete types: AuthRequest, DataMessage, StatusMessage.
type Message interface {
	isMessage()
}

// AuthRequest is the authentication handshake a device sends as its
// first frame. It carries no type tag on the wire.
type AuthRequest struct {
	DeviceID  string
	DeviceKey string
}

// DataMessage carries a flat key→value telemetry payload. Timestamp is
// the device-reported epoch seconds, if present. Values holds every
// payload key except "type" and "timestamp"; sensor matching happens
// downstream against configured value keys.
type DataMessage struct {
	Timestamp *int64
	Values    map[string]any
}

// StatusMessage carries a device-reported status string.
type StatusMessage struct {
	Status string
}

func (AuthRequest) isMessage()   {}
func (DataMessage) isMessage()   {}
func (StatusMessage) isMessage() {}

// Decode parses a frame into its message variant:
//
//   - type "data"                          → DataMessage
//   - type "status"                        → StatusMessage
//   - no type, device_id+device_key set    → AuthRequest
//   - no type otherwise                    → DataMessage (implicit data)
//   - any other type tag                   → ErrUnknownType
//
// The implicit-data fallback mirrors the device protocol: authenticated
// devices may omit the type tag on telemetry frames.
func Decode(frame []byte) (Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	typ, hasType := raw["type"].(string)
	if !hasType {
		id, hasID := raw["device_id"].(string)
		key, hasKey := raw["device_key"].(string)
		if hasID && hasKey {
			return AuthRequest{DeviceID: id, DeviceKey: key}, nil
		}
		return decodeData(raw), nil
	}

	switch typ {
	case TypeData:
		return decodeData(raw), nil
	case TypeStatus:
		status, ok := raw["status"].(string)
		if !ok || status == "" {
			return nil, fmt.Errorf("%w: status field required", ErrInvalidMessage)
		}
		return StatusMessage{Status: status}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

func decodeData(raw map[string]any) DataMessage {
	msg := DataMessage{Values: make(map[string]any, len(raw))}

	if ts, ok := raw["timestamp"].(float64); ok {
		t := int64(ts)
		msg.Timestamp = &t
	}

	for k, v := range raw {
		if k == "type" || k == "timestamp" {
			continue
		}
		msg.Values[k] = v
	}

	return msg
}

// Ack is the common shape of positive replies.
type Ack struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorReply is the structured error envelope sent for any recoverable
// or fatal protocol error.
type ErrorReply struct {
	Type      string `json:"type"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"device_id,omitempty"`
}

// AuthSuccess builds the reply for a successful authentication.
func AuthSuccess() Ack {
	return Ack{Type: "auth_success", Message: "authentication successful", Timestamp: now()}
}

// DataReceived builds the acknowledgement for a persisted data payload.
func DataReceived() Ack {
	return Ack{Type: "data_received", Timestamp: now()}
}

// StatusUpdated builds the acknowledgement for a processed status message.
func StatusUpdated(status string) Ack {
	return Ack{Type: "status_updated", Status: status, Timestamp: now()}
}

// NewErrorReply builds a structured error reply. deviceID may be empty
// when the device is not yet known (pre-authentication errors).
func NewErrorReply(code, message, deviceID string) ErrorReply {
	return ErrorReply{
		Type:      "error",
		ErrorCode: code,
		Message:   message,
		Timestamp: now(),
		DeviceID:  deviceID,
	}
}

func now() int64 {
	return time.Now().Unix()
}
