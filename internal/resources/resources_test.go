package resources

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shelfscan/shelfscan/internal/gateway"
)

// routeSender answers requests from a "METHOD path" table and records every
// call. Unrouted requests fail the test via the onMiss hook.
type routeSender struct {
	mu     sync.Mutex
	routes map[string]func() (json.RawMessage, error)
	calls  []string
	onMiss func(key string)
}

func newRouteSender(onMiss func(key string)) *routeSender {
	return &routeSender{
		routes: make(map[string]func() (json.RawMessage, error)),
		onMiss: onMiss,
	}
}

func (r *routeSender) route(method, path string, fn func() (json.RawMessage, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[method+" "+path] = fn
}

func (r *routeSender) respond(method, path, body string) {
	r.route(method, path, func() (json.RawMessage, error) {
		if body == "" {
			return nil, nil
		}
		return json.RawMessage(body), nil
	})
}

func (r *routeSender) fail(method, path string, err error) {
	r.route(method, path, func() (json.RawMessage, error) { return nil, err })
}

func (r *routeSender) Send(ctx context.Context, d gateway.Descriptor) (json.RawMessage, error) {
	key := d.Method + " " + d.Path
	r.mu.Lock()
	r.calls = append(r.calls, key)
	fn, ok := r.routes[key]
	miss := r.onMiss
	r.mu.Unlock()
	if !ok {
		miss(key)
		return nil, nil
	}
	return fn()
}

func (r *routeSender) callCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == key {
			n++
		}
	}
	return n
}

type fixedEpoch struct{ epoch uint64 }

func (f *fixedEpoch) Epoch() uint64 { return f.epoch }

type alwaysConfirm struct{}

func (alwaysConfirm) Confirm(string) bool { return true }

type neverConfirm struct{}

func (neverConfirm) Confirm(string) bool { return false }
