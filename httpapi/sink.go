package httpapi

import "github.com/viant/jsonrpc/transport/sse"

// sseSink adapts a flushWriter into a registry.Sink, framing every
// delivered message as one SSE event.
type sseSink struct {
	w      *flushWriter
	framer *sse.Framer
}

func newSSESink(w *flushWriter) *sseSink {
	return &sseSink{w: w, framer: sse.NewFramer()}
}

func (s *sseSink) Send(data []byte) error {
	frame, _ := s.framer.Frame("message", data)
	_, err := s.w.Write(frame)
	return err
}
