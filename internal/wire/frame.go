package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultMaxFrameSize is the maximum number of bytes the decoder
// buffers while waiting for a delimiter (128 KiB).
const DefaultMaxFrameSize = 128 * 1024

// Decoder extracts delimiter-terminated frames from an accumulating
// byte stream. Feed it chunks as they arrive from the network; the
// sequence of frames produced is independent of how the stream was
// chunked.
//
// A Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	delim []byte
	max   int
	buf   []byte
}

// NewDecoder creates a frame decoder for the given delimiter.
// A nil/empty delimiter defaults to "\n"; maxFrameSize <= 0 defaults to
// DefaultMaxFrameSize.
func NewDecoder(delim []byte, maxFrameSize int) *Decoder {
	if len(delim) == 0 {
		delim = []byte("\n")
	}
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{delim: delim, max: maxFrameSize}
}

// Feed appends a chunk to the buffer and returns all complete frames.
// Empty frames (consecutive delimiters, trailing delimiter) are dropped.
//
// If, after extracting complete frames, the buffered partial frame
// exceeds the maximum size, Feed returns the extracted frames together
// with ErrBufferOverflow. The caller must treat that error as fatal and
// close the connection; the decoder's buffer is no longer usable.
func (d *Decoder) Feed(p []byte) ([][]byte, error) {
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		i := bytes.Index(d.buf, d.delim)
		if i < 0 {
			break
		}

		if i > 0 {
			frame := make([]byte, i)
			copy(frame, d.buf[:i])
			frames = append(frames, frame)
		}
		d.buf = d.buf[i+len(d.delim):]
	}

	// Compact so the backing array doesn't pin consumed bytes.
	if len(d.buf) > 0 {
		d.buf = append([]byte(nil), d.buf...)
	} else {
		d.buf = nil
	}

	if len(d.buf) > d.max {
		return frames, fmt.Errorf("%w: %d bytes buffered, limit %d", ErrBufferOverflow, len(d.buf), d.max)
	}

	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards any buffered partial frame.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Encoder serialises messages into delimiter-terminated JSON frames.
type Encoder struct {
	delim []byte
}

// NewEncoder creates a frame encoder for the given delimiter.
// A nil/empty delimiter defaults to "\n".
func NewEncoder(delim []byte) *Encoder {
	if len(delim) == 0 {
		delim = []byte("\n")
	}
	return &Encoder{delim: delim}
}

// Encode marshals v as JSON and appends the frame delimiter.
func (e *Encoder) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return append(b, e.delim...), nil
}
