package proxy

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/internal/collection"
)

// waiterKey identifies an in-flight request uniquely by the session it
// belongs to and its JSON-RPC id, so a response can never complete a
// waiter on a different session (cross-session isolation, per design).
type waiterKey struct {
	sessionID string
	requestID string
}

func idKey(id jsonrpc.RequestId) string {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Sprintf("%v", id)
	}
	return string(data)
}

func keyFor(sessionID string, id jsonrpc.RequestId) waiterKey {
	return waiterKey{sessionID: sessionID, requestID: idKey(id)}
}

// waiters is a per-request completion table keyed by (sessionId, requestId),
// replacing a polling read of the session queue with a direct wake-up: the
// correlation loop resolves the channel for an arriving response and sends
// to it exactly once.
type waiters struct {
	table *collection.SyncMap[waiterKey, chan *jsonrpc.Response]
}

func newWaiters() *waiters {
	return &waiters{table: collection.NewSyncMap[waiterKey, chan *jsonrpc.Response]()}
}

// register creates and returns the channel for (sessionID, id). The caller
// must eventually call cancel (deferred) to avoid leaking the entry if no
// response ever arrives.
func (w *waiters) register(sessionID string, id jsonrpc.RequestId) (ch chan *jsonrpc.Response, cancel func()) {
	key := keyFor(sessionID, id)
	ch = make(chan *jsonrpc.Response, 1)
	w.table.Put(key, ch)
	return ch, func() { w.table.Delete(key) }
}

// complete delivers resp to the waiter for (sessionID, resp.Id), if any is
// registered. Returns false if no waiter was found (the response is then
// treated as an uncorrelated, server-initiated message).
func (w *waiters) complete(sessionID string, resp *jsonrpc.Response) bool {
	if resp == nil {
		return false
	}
	key := keyFor(sessionID, resp.Id)
	ch, ok := w.table.Get(key)
	if !ok {
		return false
	}
	w.table.Delete(key)
	select {
	case ch <- resp:
	default:
	}
	return true
}

// failAllForSession completes every outstanding waiter for sessionID with
// resp, used when the backing subprocess crashes while requests are in
// flight.
func (w *waiters) failAllForSession(sessionID string, resp *jsonrpc.Response) {
	var keys []waiterKey
	w.table.Range(func(k waiterKey, _ chan *jsonrpc.Response) bool {
		if k.sessionID == sessionID {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		if ch, ok := w.table.Get(k); ok {
			w.table.Delete(k)
			select {
			case ch <- resp:
			default:
			}
		}
	}
}
