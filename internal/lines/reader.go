// Package lines frames a byte stream into newline-delimited records, the
// wire format subprocesses speak over stdout/stderr.
package lines

import (
	"bufio"
	"io"
)

// ReadLines reads newline-terminated lines from r and sends each, with the
// trailing newline stripped, to emit. It returns when r returns an error
// (including io.EOF, reported as nil) or emit asks to stop by returning
// false.
func ReadLines(r io.Reader, emit func(line []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if !emit(scanner.Bytes()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
