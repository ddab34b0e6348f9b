// Package tcpserver implements the native TCP transport for field
// devices.
//
// Devices speak newline-delimited JSON frames (see the wire package).
// Each connection runs as a session state machine: the first frame must
// carry device credentials, and everything after authentication is data
// or status traffic handed to the telemetry normalizer. Recoverable
// protocol errors (bad JSON, unknown type tags, invalid status values)
// are answered with structured error replies on the open connection;
// only authentication failure and framing overflow close it. A session
// that authenticated marks its device offline when the connection ends.
package tcpserver
