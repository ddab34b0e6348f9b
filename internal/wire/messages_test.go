package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_AuthRequest(t *testing.T) {
	msg, err := Decode([]byte(`{"device_id":"DEV-000001","device_key":"secret"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	auth, ok := msg.(AuthRequest)
	if !ok {
		t.Fatalf("Decode() = %T, want AuthRequest", msg)
	}
	if auth.DeviceID != "DEV-000001" || auth.DeviceKey != "secret" {
		t.Errorf("AuthRequest = %+v", auth)
	}
}

func TestDecode_DataMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"data","timestamp":1767225600,"temperature":21.5,"door_open":true,"mode":"eco"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	data, ok := msg.(DataMessage)
	if !ok {
		t.Fatalf("Decode() = %T, want DataMessage", msg)
	}
	if data.Timestamp == nil || *data.Timestamp != 1767225600 {
		t.Errorf("Timestamp = %v, want 1767225600", data.Timestamp)
	}
	if len(data.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(data.Values))
	}
	if v := data.Values["temperature"]; v != 21.5 {
		t.Errorf("temperature = %v (%T), want 21.5", v, v)
	}
	if v := data.Values["door_open"]; v != true {
		t.Errorf("door_open = %v, want true", v)
	}
	if v := data.Values["mode"]; v != "eco" {
		t.Errorf("mode = %v, want eco", v)
	}
	if _, ok := data.Values["type"]; ok {
		t.Error("type tag leaked into Values")
	}
	if _, ok := data.Values["timestamp"]; ok {
		t.Error("timestamp leaked into Values")
	}
}

func TestDecode_ImplicitData(t *testing.T) {
	// Authenticated devices may omit the type tag on telemetry frames.
	msg, err := Decode([]byte(`{"temperature":19.0}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	data, ok := msg.(DataMessage)
	if !ok {
		t.Fatalf("Decode() = %T, want DataMessage", msg)
	}
	if data.Timestamp != nil {
		t.Errorf("Timestamp = %v, want nil", data.Timestamp)
	}
	if v := data.Values["temperature"]; v != 19.0 {
		t.Errorf("temperature = %v, want 19.0", v)
	}
}

func TestDecode_StatusMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"status","status":"offline"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	status, ok := msg.(StatusMessage)
	if !ok {
		t.Fatalf("Decode() = %T, want StatusMessage", msg)
	}
	if status.Status != "offline" {
		t.Errorf("Status = %q, want offline", status.Status)
	}
}

func TestDecode_StatusMissingField(t *testing.T) {
	_, err := Decode([]byte(`{"type":"status"}`))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Decode() error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":"data",`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Decode() error = %v, want ErrInvalidJSON", err)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"firmware_update"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Decode() error = %v, want ErrUnknownType", err)
	}
}

func TestReplies_WireShape(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want map[string]any
	}{
		{
			name: "auth success",
			v:    AuthSuccess(),
			want: map[string]any{"type": "auth_success", "message": "authentication successful"},
		},
		{
			name: "data received",
			v:    DataReceived(),
			want: map[string]any{"type": "data_received"},
		},
		{
			name: "status updated",
			v:    StatusUpdated("maintenance"),
			want: map[string]any{"type": "status_updated", "status": "maintenance"},
		},
		{
			name: "error with device",
			v:    NewErrorReply(CodeInvalidJSON, "bad frame", "DEV-000001"),
			want: map[string]any{"type": "error", "error_code": "invalid_json", "message": "bad frame", "device_id": "DEV-000001"},
		},
		{
			name: "error without device",
			v:    NewErrorReply(CodeAuthFailed, "invalid credentials", ""),
			want: map[string]any{"type": "error", "error_code": "auth_failed", "message": "invalid credentials"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(b, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			ts, ok := got["timestamp"].(float64)
			if !ok || ts <= 0 {
				t.Errorf("timestamp = %v, want positive epoch seconds", got["timestamp"])
			}
			delete(got, "timestamp")

			if len(got) != len(tt.want) {
				t.Fatalf("fields = %v, want %v", got, tt.want)
			}
			for k, w := range tt.want {
				if got[k] != w {
					t.Errorf("%s = %v, want %v", k, got[k], w)
				}
			}
		})
	}
}
