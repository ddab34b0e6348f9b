// Package wire implements the device wire protocol: delimiter framing
// over a byte stream and the JSON message envelopes exchanged with
// devices.
//
// # Framing
//
// Frames are delimiter-terminated (newline by default) UTF-8 JSON with
// no length prefix. Decoder accumulates network chunks and extracts
// complete frames; the frame sequence is invariant under arbitrary
// chunking of the input. A partial frame exceeding the configured
// maximum (128 KiB by default) is a fatal framing error.
//
// # Messages
//
// Decode returns the tagged union of inbound messages: AuthRequest
// (first frame, no type tag), DataMessage (flat key→value telemetry),
// StatusMessage. Reply builders produce the outbound envelopes
// (auth_success, data_received, status_updated, error) with epoch-second
// timestamps.
package wire
