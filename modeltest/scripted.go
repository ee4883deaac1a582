// Package modeltest provides deterministic model handlers for tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ferrant/distill"
)

// Response configures one handler invocation in a scripted sequence.
type Response struct {
	Value any
	Err   error
}

// Scripted is a deterministic handler that replays a fixed sequence of
// responses and records every request it receives. Safe for concurrent use.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []distill.ModelRequest
}

// NewScripted builds a handler that answers with the given responses in
// order and fails once the script runs out.
func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

// Values builds a scripted handler from plain success values.
func Values(vs ...any) *Scripted {
	responses := make([]Response, len(vs))
	for i, v := range vs {
		responses[i] = Response{Value: v}
	}
	return NewScripted(responses...)
}

var _ distill.ModelHandler = (*Scripted)(nil)

func (m *Scripted) Transform(_ context.Context, req distill.ModelRequest) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.index >= len(m.responses) {
		return nil, fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	current := m.responses[m.index]
	m.index++
	if current.Err != nil {
		return nil, current.Err
	}
	return current.Value, nil
}

// Calls reports how many times the handler was invoked.
func (m *Scripted) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests, in invocation order.
func (m *Scripted) Requests() []distill.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]distill.ModelRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
