package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant_server/pkg/apperr"
)

// Ticket identifies one suspended turn waiting on a user answer.
type Ticket struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Prompt    string    `json:"prompt"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gate issues tickets for turns that need human input and redeems them when
// the answer arrives. Tickets expire after the configured timeout; an expired
// or unknown ticket cannot resume anything.
type Gate struct {
	mu       sync.Mutex
	tickets  map[string]*Ticket
	timeout  time.Duration
	onExpire func(sessionID string)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGate builds a gate and starts its expiry sweep.
func NewGate(timeout time.Duration) *Gate {
	g := &Gate{
		tickets: make(map[string]*Ticket),
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
	go g.sweepLoop()
	return g
}

// Suspend records a pending question for a session and returns its ticket.
func (g *Gate) Suspend(sessionID string, userID uuid.UUID, prompt string) *Ticket {
	ticket := &Ticket{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Prompt:    prompt,
		ExpiresAt: time.Now().Add(g.timeout),
	}
	g.mu.Lock()
	g.tickets[ticket.ID] = ticket
	g.mu.Unlock()
	return ticket
}

// OnExpire registers a callback invoked with the session id whenever a ticket
// lapses without being redeemed.
func (g *Gate) OnExpire(fn func(sessionID string)) {
	g.mu.Lock()
	g.onExpire = fn
	g.mu.Unlock()
}

// Resume consumes a ticket on behalf of its owner. A second redemption, an
// unknown id, or an expired ticket all fail. A resume by the wrong user fails
// without consuming the ticket, so the owner can still redeem it.
func (g *Gate) Resume(ticketID string, userID uuid.UUID) (*Ticket, error) {
	g.mu.Lock()
	ticket, ok := g.tickets[ticketID]
	if !ok {
		g.mu.Unlock()
		return nil, apperr.NotFound("ticket")
	}
	if ticket.UserID != userID {
		g.mu.Unlock()
		return nil, apperr.Forbidden("ticket belongs to another user")
	}
	delete(g.tickets, ticketID)
	expired := time.Now().After(ticket.ExpiresAt)
	fn := g.onExpire
	g.mu.Unlock()

	if expired {
		if fn != nil {
			fn(ticket.SessionID)
		}
		return nil, apperr.BadRequest("ticket expired")
	}
	return ticket, nil
}

// Pending reports whether a session has an open ticket.
func (g *Gate) Pending(sessionID string) (*Ticket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ticket := range g.tickets {
		if ticket.SessionID == sessionID && time.Now().Before(ticket.ExpiresAt) {
			return ticket, true
		}
	}
	return nil, false
}

// Close stops the expiry sweep.
func (g *Gate) Close() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

func (g *Gate) sweepLoop() {
	interval := g.timeout / 2
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stopCh:
			return
		}
	}
}

func (g *Gate) sweep() {
	now := time.Now()
	g.mu.Lock()
	var lapsed []string
	for id, ticket := range g.tickets {
		if now.After(ticket.ExpiresAt) {
			delete(g.tickets, id)
			lapsed = append(lapsed, ticket.SessionID)
		}
	}
	fn := g.onExpire
	g.mu.Unlock()

	if fn != nil {
		for _, sessionID := range lapsed {
			fn(sessionID)
		}
	}
}
