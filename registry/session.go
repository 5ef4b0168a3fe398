// Package registry allocates and tracks Sessions: the per-client binding to
// a supervised subprocess, its pending-message queue, and its attached SSE
// sinks.
package registry

import (
	"sync"
	"time"

	"github.com/viant/jsonrpc/process"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateActive State = iota
	StateDestroyed
)

// Sink receives server-initiated messages fanned out to an attached SSE
// stream. Implementations must not block indefinitely on Send.
type Sink interface {
	Send(data []byte) error
}

// Session is the unit of client<->subprocess binding.
type Session struct {
	Id         string
	Config     process.ServerConfig
	HandleId   string
	CreatedAt  time.Time

	mu            sync.Mutex
	lastActivity  time.Time
	initialized   bool
	state         State
	queue         [][]byte
	sinks         map[*Sink]Sink
	done          chan struct{}
}

func newSession(id string, cfg process.ServerConfig, handleId string) *Session {
	now := time.Now()
	return &Session{
		Id:           id,
		Config:       cfg,
		HandleId:     handleId,
		CreatedAt:    now,
		lastActivity: now,
		state:        StateActive,
		sinks:        make(map[*Sink]Sink),
		done:         make(chan struct{}),
	}
}

// Touch refreshes the last-activity clock; last-activity is monotone
// non-decreasing within a session's life.
func (s *Session) Touch() {
	s.mu.Lock()
	now := time.Now()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MarkInitialized flips the initialized flag. It is idempotent; only the
// first call has effect, matching the false->true-exactly-once invariant.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// Initialized reports whether the handshake's initialize response has been
// observed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Deliver routes a server-initiated message: if any SSE sink is attached it
// is sent immediately to every attached sink, otherwise the message is
// appended to the FIFO queue for later draining.
func (s *Session) Deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sinks) == 0 {
		s.queue = append(s.queue, data)
		return
	}
	for _, sink := range s.sinks {
		_ = sink.Send(data)
	}
}

// Attach registers sink, atomically draining any queued messages to it
// before any concurrently-delivered message can reach it, then returns a
// detach function. Per spec ordering, the drain must happen-before any
// subsequent Deliver call observes the new sink.
func (s *Session) Attach(sink Sink) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.queue
	s.queue = nil
	for _, msg := range queued {
		_ = sink.Send(msg)
	}

	key := new(Sink)
	s.sinks[key] = sink

	return func() {
		s.mu.Lock()
		delete(s.sinks, key)
		s.mu.Unlock()
	}
}

// AttachedCount returns the number of currently attached SSE sinks.
func (s *Session) AttachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// QueueLen returns the number of queued, undelivered messages.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) markDestroyed() {
	s.mu.Lock()
	already := s.state == StateDestroyed
	s.state = StateDestroyed
	s.queue = nil
	s.mu.Unlock()
	if !already {
		close(s.done)
	}
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed exactly once, when the session is destroyed. Handlers
// holding an open SSE stream select on it to unblock and close the
// connection instead of leaking it past the session's lifetime.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
