package session

import (
	"context"
	"sync"
)

type sessionKey struct {
	userID  string
	topicID string
}

// Registry keeps one open Session per (user, topic) for long-running
// servers. Each entry is an explicit handle; nothing is global.
type Registry struct {
	engine *Engine

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry returns an empty registry backed by engine.
func NewRegistry(engine *Engine) *Registry {
	return &Registry{
		engine:   engine,
		sessions: make(map[sessionKey]*Session),
	}
}

// Engine returns the engine sessions are opened with.
func (r *Registry) Engine() *Engine {
	return r.engine
}

// Open loads a fresh session and replaces any existing one for the pair.
func (r *Registry) Open(ctx context.Context, userID, topicID string) (*Session, error) {
	s, err := r.engine.Open(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sessionKey{userID, topicID}] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the open session for the pair, opening one if none exists.
func (r *Registry) Get(ctx context.Context, userID, topicID string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionKey{userID, topicID}]
	r.mu.Unlock()
	if ok {
		return s, nil
	}
	return r.Open(ctx, userID, topicID)
}

// Close forgets the session for the pair.
func (r *Registry) Close(userID, topicID string) {
	r.mu.Lock()
	delete(r.sessions, sessionKey{userID, topicID})
	r.mu.Unlock()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
