package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/internal/collection"
	"github.com/viant/jsonrpc/internal/lines"
)

// supervised pairs a Handle with the live *exec.Cmd driving it across
// restarts.
type supervised struct {
	handle *Handle

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	killed bool
}

func (sv *supervised) markKilled() {
	sv.mu.Lock()
	sv.killed = true
	sv.mu.Unlock()
}

func (sv *supervised) isKilled() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.killed
}

// Supervisor spawns, observes, restarts, and terminates child processes, and
// delivers their framed stdout/stderr and lifecycle transitions as Events.
type Supervisor struct {
	opts    Options
	logger  jsonrpc.Logger
	events  chan Event
	handles *collection.SyncMap[string, *supervised]
}

// NewSupervisor constructs a Supervisor. If logger is nil, jsonrpc.DefaultLogger is used.
func NewSupervisor(opts Options, logger jsonrpc.Logger) *Supervisor {
	if logger == nil {
		logger = jsonrpc.DefaultLogger
	}
	return &Supervisor{
		opts:    opts,
		logger:  logger,
		events:  make(chan Event, 256),
		handles: collection.NewSyncMap[string, *supervised](),
	}
}

// Events returns the channel of observable lifecycle and I/O events.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

func (s *Supervisor) emit(e Event) {
	s.events <- e
}

// Spawn starts a new handle with id and cfg. id must not already be in use.
// It blocks up to Options.StartConfirmWindow to confirm the child process
// did not immediately exit.
func (s *Supervisor) Spawn(id string, cfg ServerConfig) (*Handle, error) {
	if _, exists := s.handles.Get(id); exists {
		return nil, fmt.Errorf("process: handle id %q already in use", id)
	}
	h := &Handle{Id: id, Config: cfg}
	sv := &supervised{handle: h}
	s.handles.Put(id, sv)

	if err := s.startAndConfirm(sv); err != nil {
		s.handles.Delete(id)
		return nil, err
	}
	return h, nil
}

func (s *Supervisor) newCmd(cfg ServerConfig) (*exec.Cmd, io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cmd, stdin, stdout, stderr, nil
}

// startAndConfirm spawns a fresh child for sv, waits the confirmation
// window, and on success launches the background goroutine that watches
// for exit.
func (s *Supervisor) startAndConfirm(sv *supervised) error {
	cmd, stdin, stdout, stderr, err := s.newCmd(sv.handle.Config)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	sv.mu.Lock()
	sv.cmd = cmd
	sv.stdin = stdin
	sv.killed = false
	sv.mu.Unlock()

	go s.pump(sv, stdout, EventStdout)
	go s.pump(sv, stderr, EventStderr)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case err := <-waitDone:
		return fmt.Errorf("process: %s exited during startup: %w", sv.handle.Id, err)
	case <-time.After(s.opts.StartConfirmWindow):
	}

	sv.handle.setState(StateRunning)
	s.emit(Event{Kind: EventStarted, HandleId: sv.handle.Id})
	go s.supervise(sv, waitDone)
	return nil
}

// supervise watches for process exit and drives the bounded restart policy.
func (s *Supervisor) supervise(sv *supervised, waitDone chan error) {
	for {
		err := <-waitDone

		if sv.isKilled() {
			sv.handle.setState(StateStopped)
			exitCode := 0
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
			s.emit(Event{Kind: EventStopped, HandleId: sv.handle.Id, ExitCode: exitCode})
			return
		}

		// A clean exit (code 0, no I/O error) is not a crash: the subprocess
		// chose to stop on its own, so it is left stopped without consuming
		// a restart attempt.
		if exitCode, clean := cleanExit(err); clean {
			sv.handle.setState(StateStopped)
			s.emit(Event{Kind: EventStopped, HandleId: sv.handle.Id, ExitCode: exitCode})
			return
		}

		sv.handle.setCrashed(err)
		exhausted := sv.handle.RestartCount() >= s.opts.MaxRestartAttempts
		s.emit(Event{Kind: EventCrashed, HandleId: sv.handle.Id, Err: err, Exhausted: exhausted})
		if exhausted {
			s.handles.Delete(sv.handle.Id)
			return
		}

		time.Sleep(s.opts.RestartDelay)
		attempt := sv.handle.incrementRestart()

		next, restartErr := s.restartChild(sv)
		if restartErr != nil {
			sv.handle.setCrashed(restartErr)
			exhausted = sv.handle.RestartCount() >= s.opts.MaxRestartAttempts
			s.emit(Event{Kind: EventCrashed, HandleId: sv.handle.Id, Err: restartErr, Exhausted: exhausted})
			if exhausted {
				s.handles.Delete(sv.handle.Id)
				return
			}
			waitDone = make(chan error, 1)
			waitDone <- restartErr
			continue
		}

		sv.handle.setState(StateRunning)
		s.emit(Event{Kind: EventRestarted, HandleId: sv.handle.Id, Attempt: attempt})
		waitDone = next
	}
}

// cleanExit reports whether err represents the process exiting on its own
// with code 0, as opposed to a nonzero exit code or an I/O error reading its
// pipes — only the latter two count as a crash.
func cleanExit(err error) (exitCode int, clean bool) {
	if err == nil {
		return 0, true
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		return code, code == 0
	}
	return 0, false
}

// restartChild spawns a fresh child reusing sv's configuration, returning
// the channel that will receive its eventual exit.
func (s *Supervisor) restartChild(sv *supervised) (chan error, error) {
	cmd, stdin, stdout, stderr, err := s.newCmd(sv.handle.Config)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	sv.mu.Lock()
	sv.cmd = cmd
	sv.stdin = stdin
	sv.killed = false
	sv.mu.Unlock()

	go s.pump(sv, stdout, EventStdout)
	go s.pump(sv, stderr, EventStderr)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()
	return waitDone, nil
}

func (s *Supervisor) pump(sv *supervised, r io.Reader, kind EventKind) {
	_ = lines.ReadLines(r, func(line []byte) bool {
		cp := make([]byte, len(line))
		copy(cp, line)
		s.emit(Event{Kind: kind, HandleId: sv.handle.Id, Line: cp})
		return true
	})
}

// Write sends one JSON-encoded message to the handle's stdin, appending a
// trailing newline if the caller did not include one. Writing to a
// non-running handle fails immediately.
func (s *Supervisor) Write(id string, data []byte) error {
	sv, ok := s.handles.Get(id)
	if !ok {
		return fmt.Errorf("process: unknown handle %q", id)
	}
	if sv.handle.State() != StateRunning {
		return fmt.Errorf("process: handle %q is not running", id)
	}

	sv.mu.Lock()
	stdin := sv.stdin
	sv.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("process: handle %q has no stdin", id)
	}

	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(append([]byte{}, data...), '\n')
	}
	_, err := stdin.Write(data)
	return err
}

// Kill sends SIGTERM to the handle's process and transitions it to stopped.
// Killing an unknown handle is a no-op, logged as a warning.
func (s *Supervisor) Kill(id string) error {
	sv, ok := s.handles.Get(id)
	if !ok {
		s.logger.Errorf("process: kill requested for unknown handle %q (no-op)", id)
		return nil
	}
	sv.markKilled()

	sv.mu.Lock()
	cmd := sv.cmd
	sv.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	return nil
}

// KillAll terminates every currently tracked handle.
func (s *Supervisor) KillAll() {
	var ids []string
	s.handles.Range(func(id string, _ *supervised) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		_ = s.Kill(id)
	}
}

// Handle returns the Handle for id, if tracked.
func (s *Supervisor) Handle(id string) (*Handle, bool) {
	sv, ok := s.handles.Get(id)
	if !ok {
		return nil, false
	}
	return sv.handle, true
}
