package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant_server/core/domain"
)

// Conversation is the per-session state: an append-only message log, the
// current routing flag and the turn state. Turns on the same conversation are
// serialized by the turn lock; messages are never mutated or reordered after
// Append.
type Conversation struct {
	ID     string
	UserID uuid.UUID

	turnMu sync.Mutex

	mu       sync.RWMutex
	messages []domain.Message
	routing  domain.RoutingFlag
	state    domain.TurnState
	created  time.Time
	lastUsed time.Time
}

// BeginTurn takes the turn lock. Callers on the same conversation run one at
// a time, in arrival order.
func (c *Conversation) BeginTurn() { c.turnMu.Lock() }

// EndTurn releases the turn lock.
func (c *Conversation) EndTurn() { c.turnMu.Unlock() }

// Append adds a message to the end of the log, stamping it if unstamped.
func (c *Conversation) Append(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	c.messages = append(c.messages, msg)
	c.lastUsed = time.Now()
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Routing returns the current routing flag.
func (c *Conversation) Routing() domain.RoutingFlag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routing
}

// SetRouting records the routing outcome of the latest turn.
func (c *Conversation) SetRouting(flag domain.RoutingFlag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routing = flag
	c.lastUsed = time.Now()
}

// State returns the turn state.
func (c *Conversation) State() domain.TurnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState moves the turn machine.
func (c *Conversation) SetState(state domain.TurnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.lastUsed = time.Now()
}

// EndSuspension returns the conversation to idle if it is still waiting on an
// answer. Called when the pending question lapses; the conversation survives
// and the next user message starts a fresh turn.
func (c *Conversation) EndSuspension() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.TurnSuspended {
		c.state = domain.TurnIdle
		c.routing = domain.RouteContinue
	}
}

// Store keeps conversations in memory, keyed by session id, evicting idle
// ones after the TTL.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore builds a store and starts its eviction loop.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*Conversation),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// GetOrCreate returns the conversation for the session id, creating it if
// missing. An empty id gets a fresh one.
func (s *Store) GetOrCreate(sessionID string, userID uuid.UUID) *Conversation {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.sessions[sessionID]; ok {
		return conv
	}
	now := time.Now()
	conv := &Conversation{
		ID:       sessionID,
		UserID:   userID,
		routing:  domain.RouteContinue,
		state:    domain.TurnIdle,
		created:  now,
		lastUsed: now,
	}
	s.sessions[sessionID] = conv
	return conv
}

// Get returns the conversation for the session id.
func (s *Store) Get(sessionID string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.sessions[sessionID]
	return conv, ok
}

// Delete drops a conversation.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Close stops the eviction loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) cleanupLoop() {
	interval := s.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) evictExpired() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.sessions {
		conv.mu.RLock()
		idle := conv.lastUsed.Before(cutoff)
		suspended := conv.state == domain.TurnSuspended
		conv.mu.RUnlock()
		if idle && !suspended {
			delete(s.sessions, id)
		}
	}
}
