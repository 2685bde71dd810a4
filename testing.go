package hashtable

import (
	"fmt"
	"sync"
)

// RecordingLogger is a server.Logger that buffers every line instead of
// writing it anywhere, for tests that assert on what the server logged
// (e.g. a debug-print dump or a stalled-watchdog warning) without
// spinning up a real sink. It is an in-memory stand-in implementing the
// production interface, exported so consumers of this package can use it
// in their own tests.
type RecordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (r *RecordingLogger) Infof(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, fmt.Sprintf(format, args...))
}

func (r *RecordingLogger) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

// Infos returns every message passed to Infof, in order.
func (r *RecordingLogger) Infos() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.infos))
	copy(out, r.infos)
	return out
}

// Warns returns every message passed to Warnf, in order.
func (r *RecordingLogger) Warns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.warns))
	copy(out, r.warns)
	return out
}
