package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/internal/collection"
	"github.com/viant/jsonrpc/process"
)

// ErrResourceExhausted is returned by Create when maxSessions is reached
// even after sweeping expired sessions.
var ErrResourceExhausted = errors.New("registry: resource exhausted")

// ErrSessionNotFound is returned by Get for an unknown or expired session.
var ErrSessionNotFound = errors.New("registry: session not found")

// Options bounds the registry's capacity and expiry behavior.
type Options struct {
	MaxSessions    int
	SessionTimeout time.Duration
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxSessions:    100,
		SessionTimeout: time.Hour,
	}
}

// Stats aggregates registry-wide counters for the /stats collaborator.
type Stats struct {
	Total           int
	Initialized     int
	ActiveLast60s   int
	AttachedSSE     int
	AverageQueueLen float64
	OldestCreatedAt time.Time
	NewestCreatedAt time.Time
}

// DestroyHook is invoked when a session is destroyed, after it has been
// removed from the registry, so callers can tear down its bound subprocess
// and clean up external indexes.
type DestroyHook func(s *Session)

// MetricsRecorder receives session lifecycle counts. Implemented by
// *metrics.Collectors; kept as a small interface here so this package does
// not import the metrics package directly.
type MetricsRecorder interface {
	SessionCreated()
	SessionDestroyed()
	SetSessionsActive(n int)
}

// Registry allocates session identifiers and tracks per-session state.
type Registry struct {
	opts      Options
	logger    jsonrpc.Logger
	sessions  *collection.SyncMap[string, *Session]
	byHandle  *collection.SyncMap[string, *Session]
	onDestroy DestroyHook
	metrics   MetricsRecorder

	sweepOnce sync.Once
	stopSweep chan struct{}
}

// SetMetrics attaches a MetricsRecorder; nil disables recording (the
// default), so constructing a Registry never requires a metrics dependency.
func (r *Registry) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// New constructs a Registry. onDestroy, if non-nil, is called for every
// destroyed session (e.g. so the proxy core can kill the bound subprocess).
func New(opts Options, logger jsonrpc.Logger, onDestroy DestroyHook) *Registry {
	if logger == nil {
		logger = jsonrpc.DefaultLogger
	}
	r := &Registry{
		opts:      opts,
		logger:    logger,
		sessions:  collection.NewSyncMap[string, *Session](),
		byHandle:  collection.NewSyncMap[string, *Session](),
		onDestroy: onDestroy,
		stopSweep: make(chan struct{}),
	}
	return r
}

// Create allocates a new session, sweeping expired sessions first if at
// capacity. The session's subprocess handle id is not yet known at this
// point (spawning happens after the id is derived from the session id) —
// call BindHandle once the subprocess has been spawned.
func (r *Registry) Create(cfg process.ServerConfig) (*Session, error) {
	if r.sessions.Len() >= r.opts.MaxSessions {
		r.sweep()
		if r.sessions.Len() >= r.opts.MaxSessions {
			return nil, ErrResourceExhausted
		}
	}
	id := uuid.New().String()
	s := newSession(id, cfg, "")
	r.sessions.Put(id, s)
	if r.metrics != nil {
		r.metrics.SessionCreated()
		r.metrics.SetSessionsActive(r.sessions.Len())
	}
	return s, nil
}

// BindHandle records the subprocess handle id backing s, indexing it so
// BySubprocessHandle can route supervisor events back to this session.
func (r *Registry) BindHandle(s *Session, handleId string) {
	s.HandleId = handleId
	r.byHandle.Put(handleId, s)
}

// Get looks up a session by id, lazily evicting it if its idle time exceeds
// SessionTimeout, otherwise refreshing its activity clock.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Since(s.LastActivity()) > r.opts.SessionTimeout {
		r.Destroy(id)
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// BySubprocessHandle looks up the session owning handleId, used by the
// proxy core's correlation loop to route a supervisor event back to its
// session without a lazy-eviction check (it does not refresh activity).
func (r *Registry) BySubprocessHandle(handleId string) (*Session, bool) {
	return r.byHandle.Get(handleId)
}

// Destroy closes every attached SSE stream, clears the queue, removes the
// registry entry, and invokes the destroy hook. Safe to call more than once
// for the same id.
func (r *Registry) Destroy(id string) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return
	}
	r.sessions.Delete(id)
	r.byHandle.Delete(s.HandleId)
	s.markDestroyed()

	if r.metrics != nil {
		r.metrics.SessionDestroyed()
		r.metrics.SetSessionsActive(r.sessions.Len())
	}

	if r.onDestroy != nil {
		r.onDestroy(s)
	}
}

// DestroyAll tears down every tracked session, used on graceful shutdown.
func (r *Registry) DestroyAll() {
	var ids []string
	r.sessions.Range(func(id string, _ *Session) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		r.Destroy(id)
	}
}

func (r *Registry) sweep() {
	var expired []string
	r.sessions.Range(func(id string, s *Session) bool {
		if time.Since(s.LastActivity()) > r.opts.SessionTimeout {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		r.Destroy(id)
	}
}

// StartSweeper launches the periodic expiry sweeper on an interval of
// min(60s, SessionTimeout/2). Call Stop to end it.
func (r *Registry) StartSweeper() {
	r.sweepOnce.Do(func() {
		interval := r.opts.SessionTimeout / 2
		if interval > 60*time.Second || interval <= 0 {
			interval = 60 * time.Second
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.sweep()
				case <-r.stopSweep:
					return
				}
			}
		}()
	})
}

// Stop ends the periodic sweeper goroutine, if running.
func (r *Registry) Stop() {
	select {
	case <-r.stopSweep:
	default:
		close(r.stopSweep)
	}
}

// Stats aggregates registry-wide counters for the /stats endpoint.
func (r *Registry) Stats() Stats {
	var st Stats
	var queueSum int
	now := time.Now()
	r.sessions.Range(func(_ string, s *Session) bool {
		st.Total++
		if s.Initialized() {
			st.Initialized++
		}
		if now.Sub(s.LastActivity()) <= 60*time.Second {
			st.ActiveLast60s++
		}
		st.AttachedSSE += s.AttachedCount()
		queueSum += s.QueueLen()
		if st.OldestCreatedAt.IsZero() || s.CreatedAt.Before(st.OldestCreatedAt) {
			st.OldestCreatedAt = s.CreatedAt
		}
		if s.CreatedAt.After(st.NewestCreatedAt) {
			st.NewestCreatedAt = s.CreatedAt
		}
		return true
	})
	if st.Total > 0 {
		st.AverageQueueLen = float64(queueSum) / float64(st.Total)
	}
	return st
}

// HandleIdFor derives the subprocess handle id bound to a session, per the
// session-<id> naming the proxy core uses when spawning.
func HandleIdFor(sessionId string) string {
	return fmt.Sprintf("session-%s", sessionId)
}
