package httpapi

import (
	"fmt"
	"net/http"
)

// flushWriter wraps http.ResponseWriter and flushes every write so SSE
// frames reach the client immediately instead of sitting in a buffer.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	flusher, _ := w.(http.Flusher)
	return &flushWriter{w: w, flusher: flusher}
}

func (f *flushWriter) Write(p []byte) (int, error) {
	if f.flusher == nil {
		return 0, fmt.Errorf("streaming not supported: %T does not support flushing", f.w)
	}
	n, err := f.w.Write(p)
	if err == nil {
		f.flusher.Flush()
	}
	return n, err
}
