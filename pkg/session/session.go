// Package session holds the per-flow-session context: the outputs of every
// task that has completed in one execution of a flow.
package session

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/taskpipe/pkg/template"
)

// TriggerKey is the reserved key under which the starting event payload is stored.
const TriggerKey = "trigger"

var (
	// ErrKeyAlreadyWritten indicates a second write for a task that already produced output.
	ErrKeyAlreadyWritten = errors.New("session key already written")

	// ErrSessionNotFound indicates an unknown or already ended flow session.
	ErrSessionNotFound = errors.New("flow session not found")
)

// Response is the externally visible payload emitted when a flow session is answered.
type Response struct {
	TaskID  string
	Payload any
}

// Context accumulates task outputs for one flow session. Keys are written at
// most once; concurrent tasks write disjoint keys.
type Context struct {
	id string

	mu      sync.RWMutex
	outputs map[string]any

	respondOnce sync.Once
	response    *Response
	done        chan struct{}

	lastUsed atomic.Int64
}

func NewContext(id string) *Context {
	c := &Context{
		id:      id,
		outputs: make(map[string]any),
		done:    make(chan struct{}),
	}
	c.touch(time.Now())

	return c
}

func (c *Context) touch(now time.Time) {
	c.lastUsed.Store(now.UnixNano())
}

func (c *Context) idleSince(cutoff time.Time) bool {
	return c.lastUsed.Load() < cutoff.UnixNano()
}

// ID returns the flow session identifier.
func (c *Context) ID() string {
	return c.id
}

// Set records the output of key. The value is normalized to plain JSON before
// it is stored.
func (c *Context) Set(key string, value any) error {
	normalized, err := template.Normalize(value)
	if err != nil {
		return fmt.Errorf("failed to store output for %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.outputs[key]; exists {
		return fmt.Errorf("%w: %s", ErrKeyAlreadyWritten, key)
	}

	c.outputs[key] = normalized
	c.touch(time.Now())

	return nil
}

// Get returns the output stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.outputs[key]

	return value, ok
}

// Snapshot returns a shallow copy of all outputs written so far. Stored values
// are never mutated after being written, so sharing them is safe.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.outputs)
}

// Respond marks the session as answered with payload. Only the first response
// is kept; it reports whether this call was the one recorded.
func (c *Context) Respond(taskID string, payload any) bool {
	recorded := false

	c.respondOnce.Do(func() {
		c.mu.Lock()
		c.response = &Response{TaskID: taskID, Payload: payload}
		c.mu.Unlock()

		close(c.done)

		recorded = true
	})

	return recorded
}

// Done is closed once the session has been answered.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Response returns the recorded response, if any.
func (c *Context) Response() (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.response == nil {
		return Response{}, false
	}

	return *c.response, true
}
