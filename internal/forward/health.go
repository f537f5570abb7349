// ABOUTME: Endpoint health tracker shared by the forwarding client and readiness probe.
// ABOUTME: Remembers the last known state per endpoint so dead endpoints short-circuit retries.

package forward

import (
	"sync"
	"time"
)

// EndpointStatus is a snapshot of one endpoint's last known state.
type EndpointStatus struct {
	Endpoint  string    `json:"endpoint"`
	Up        bool      `json:"up"`
	CheckedAt time.Time `json:"checked_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Tracker caches the last probe or call outcome per endpoint. An endpoint
// with no recorded state is assumed up, so the first call pays the full
// retry budget and records the result.
type Tracker struct {
	mu    sync.Mutex
	state map[string]*EndpointStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{state: make(map[string]*EndpointStatus)}
}

// MarkUp records a successful call or probe.
func (t *Tracker) MarkUp(endpoint string) {
	key := endpointKey(endpoint)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[key] = &EndpointStatus{Endpoint: key, Up: true, CheckedAt: time.Now()}
}

// MarkDown records a transport failure.
func (t *Tracker) MarkDown(endpoint string, err error) {
	key := endpointKey(endpoint)
	status := &EndpointStatus{Endpoint: key, CheckedAt: time.Now()}
	if err != nil {
		status.LastError = err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[key] = status
}

// Down reports whether the endpoint is known to be down. Unknown endpoints
// are not down.
func (t *Tracker) Down(endpoint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.state[endpointKey(endpoint)]
	return ok && !status.Up
}

// Status returns a snapshot of every tracked endpoint.
func (t *Tracker) Status() []EndpointStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EndpointStatus, 0, len(t.state))
	for _, s := range t.state {
		out = append(out, *s)
	}
	return out
}
