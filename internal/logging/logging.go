// Package logging bridges the bridge's structured slog logs to the
// jsonrpc.Logger interface consumed by the transport codec and process
// supervisor error paths.
package logging

import (
	"fmt"
	"log/slog"

	"github.com/viant/jsonrpc"
)

// SlogErrorAdapter implements jsonrpc.Logger by emitting to a *slog.Logger
// at Error level, the way the teacher's stdio server bridges an io.Writer
// into the same interface.
type SlogErrorAdapter struct {
	logger *slog.Logger
}

// NewSlogErrorAdapter wraps logger as a jsonrpc.Logger. If logger is nil,
// slog.Default() is used.
func NewSlogErrorAdapter(logger *slog.Logger) *SlogErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogErrorAdapter{logger: logger}
}

// Errorf implements jsonrpc.Logger.
func (a *SlogErrorAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

var _ jsonrpc.Logger = (*SlogErrorAdapter)(nil)
