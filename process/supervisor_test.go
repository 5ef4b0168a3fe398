package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSupervisor_SpawnWriteEcho(t *testing.T) {
	sup := NewSupervisor(DefaultOptions(), nil)
	h, err := sup.Spawn("h1", ServerConfig{Command: "cat"})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, h.State())

	select {
	case ev := <-sup.Events():
		require.Equal(t, EventStarted, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for started event")
	}

	require.NoError(t, sup.Write("h1", []byte(`{"hello":"world"}`)))

	select {
	case ev := <-sup.Events():
		require.Equal(t, EventStdout, ev.Kind)
		assert.Equal(t, `{"hello":"world"}`, string(ev.Line))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed stdout line")
	}

	require.NoError(t, sup.Kill("h1"))

drain:
	for {
		select {
		case ev := <-sup.Events():
			if ev.Kind == EventStopped {
				break drain
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stopped event")
		}
	}
}

func TestSupervisor_SpawnDuplicateIdRejected(t *testing.T) {
	sup := NewSupervisor(DefaultOptions(), nil)
	_, err := sup.Spawn("dup", ServerConfig{Command: "cat"})
	require.NoError(t, err)
	defer sup.KillAll()

	_, err = sup.Spawn("dup", ServerConfig{Command: "cat"})
	require.Error(t, err)
}

func TestSupervisor_KillUnknownHandleIsNoop(t *testing.T) {
	sup := NewSupervisor(DefaultOptions(), nil)
	require.NoError(t, sup.Kill("does-not-exist"))
}

func TestSupervisor_WriteToUnknownHandleFails(t *testing.T) {
	sup := NewSupervisor(DefaultOptions(), nil)
	err := sup.Write("nope", []byte("x"))
	require.Error(t, err)
}

func TestSupervisor_SpawnImmediateExitFails(t *testing.T) {
	sup := NewSupervisor(Options{
		MaxRestartAttempts: 3,
		RestartDelay:       10 * time.Millisecond,
		StartConfirmWindow: 200 * time.Millisecond,
	}, nil)
	_, err := sup.Spawn("failer", ServerConfig{Command: "false"})
	require.Error(t, err)
}
