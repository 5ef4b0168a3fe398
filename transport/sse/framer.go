// Package sse implements the Server-Sent Events framing the Transport Codec
// uses to push server-initiated messages and correlated responses to an
// attached HTTP stream.
package sse

import (
	"bytes"
	"sync/atomic"
)

// softCapBytes is the soft size limit past which Frame reports oversize; the
// frame is still rendered in full. The httpapi callers discard that report
// and log no warning for oversize frames.
const softCapBytes = 64 * 1024

// Framer emits monotonically increasing event ids for one SSE stream.
type Framer struct {
	seq uint64
}

// NewFramer constructs a Framer starting its id sequence at 1.
func NewFramer() *Framer {
	return &Framer{}
}

// Frame renders payload as one SSE event: an auto-incrementing "id:" line,
// an optional "event:" line, one "data:" line per payload line split on
// '\n', terminated by a blank line. It returns the encoded frame and
// whether payload exceeded the soft size cap.
func (f *Framer) Frame(event string, payload []byte) (frame []byte, oversize bool) {
	id := atomic.AddUint64(&f.seq, 1)
	var buf bytes.Buffer
	buf.WriteString("id: ")
	writeUint(&buf, id)
	buf.WriteByte('\n')
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(normalizeNewlines(payload), []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), len(payload) > softCapBytes
}

// Comment renders a raw SSE comment line (e.g. the initial ":ok" flush or a
// keep-alive), not counted against the event id sequence.
func Comment(text string) []byte {
	return []byte(": " + text + "\n\n")
}

func normalizeNewlines(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

func writeUint(buf *bytes.Buffer, v uint64) {
	if v == 0 {
		buf.WriteByte('0')
		return
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	buf.Write(digits[i:])
}
