package chat

import (
	"context"
	"sync"
)

// Opener constructs and connects a session for a normalized channel name.
// onClosed is invoked once when the session terminates for any reason.
type Opener func(ctx context.Context, channel string, onClosed func()) (*Session, error)

// Registry is the set of active sessions keyed by channel name. It is the
// single source of truth for "is channel X open" and enforces the
// at-most-one-session-per-channel invariant.
type Registry struct {
	mu       sync.Mutex
	open     Opener
	sessions map[string]*Session
	pending  map[string]*pendingOpen
}

// pendingOpen marks an in-flight dial so concurrent opens for the same
// channel wait for its result instead of dialing again.
type pendingOpen struct {
	done chan struct{}
	s    *Session
	err  error
}

// NewRegistry builds a registry around the given session opener.
func NewRegistry(open Opener) *Registry {
	return &Registry{
		open:     open,
		sessions: make(map[string]*Session),
		pending:  make(map[string]*pendingOpen),
	}
}

// IsOpen reports whether a session exists for the channel.
func (r *Registry) IsOpen(channel string) bool {
	ch := NormalizeChannel(channel)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[ch]
	return ok
}

// Open returns the existing session for the channel, or constructs and
// registers a new one. The dial runs outside the map lock so a hanging
// handshake cannot stall IsOpen, All, or Close for other channels; a
// pending marker makes concurrent opens for the same channel share one
// dial.
func (r *Registry) Open(ctx context.Context, channel string) (*Session, error) {
	ch := NormalizeChannel(channel)
	r.mu.Lock()
	if s, ok := r.sessions[ch]; ok {
		r.mu.Unlock()
		return s, nil
	}
	if p, ok := r.pending[ch]; ok {
		r.mu.Unlock()
		<-p.done
		return p.s, p.err
	}
	p := &pendingOpen{done: make(chan struct{})}
	r.pending[ch] = p
	r.mu.Unlock()

	var s *Session
	s, err := r.open(ctx, ch, func() { r.deregister(ch, s) })

	r.mu.Lock()
	delete(r.pending, ch)
	if err == nil {
		r.sessions[ch] = s
		// A session can die during its own handshake, before registration;
		// if so its onClosed already fired against an empty map and we must
		// not leave the corpse registered.
		if st := s.State(); st == StateClosed || st == StateFailed {
			delete(r.sessions, ch)
		}
	}
	r.mu.Unlock()

	p.s, p.err = s, err
	close(p.done)
	return s, err
}

// Close closes and removes the channel's session; no-op when absent.
func (r *Registry) Close(channel string) {
	ch := NormalizeChannel(channel)
	r.mu.Lock()
	s, ok := r.sessions[ch]
	if ok {
		delete(r.sessions, ch)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	for _, s := range r.All() {
		r.Close(s.Channel())
	}
}

// All returns a snapshot of the open sessions.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends a message to every open session and reports how many
// actually transmitted it.
func (r *Registry) Broadcast(text string) int {
	sent := 0
	for _, s := range r.All() {
		if s.Send(text) {
			sent++
		}
	}
	return sent
}

// deregister removes a terminated session, but only if it is still the one
// registered for the channel (a replacement may already have opened).
func (r *Registry) deregister(channel string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[channel]; ok && (s == nil || cur == s) {
		delete(r.sessions, channel)
	}
}
