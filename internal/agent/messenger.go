package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketwatch/fraudmesh/internal/platform/errs"
)

// defaultHelpTimeout is the bound on a help-request wait, per spec.md §5.
const defaultHelpTimeout = 30 * time.Second

// Message is one inter-agent message delivered through the Messenger.
type Message struct {
	MessageID     string
	From          string
	To            string // empty for broadcast
	Kind          string // "unicast", "broadcast", "help_request", "help_response", "delegation"
	CorrelationID string
	Payload       map[string]any
}

// HelpRequest is a pending request for a capability, queued for the
// orchestrator's routing loop (spec.md §4.I).
type HelpRequest struct {
	CorrelationID string
	From          string
	Capability    string
	Payload       map[string]any
	respond       chan Message
}

// Messenger is the bus every Base Agent is constructed with. It tracks
// registered agents for delivery, inbound mailboxes, pending help requests
// for the orchestrator to drain, and outstanding help-response waiters keyed
// by correlation id.
type Messenger struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	mailbox  map[string]chan Message
	pending  []HelpRequest
	waiters  map[string]chan Message
}

func NewMessenger() *Messenger {
	return &Messenger{
		agents:  make(map[string]*Agent),
		mailbox: make(map[string]chan Message),
		waiters: make(map[string]chan Message),
	}
}

func (m *Messenger) register(a *Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.AgentID] = a
	m.mailbox[a.AgentID] = make(chan Message, 64)
}

// Inbox returns the receive-only mailbox channel for an agent.
func (m *Messenger) Inbox(agentID string) <-chan Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mailbox[agentID]
}

// Unicast delivers a message to a single agent's mailbox, dropping it if the
// mailbox is full rather than blocking the sender.
func (m *Messenger) Unicast(from, to string, payload map[string]any) error {
	m.mu.RLock()
	ch, ok := m.mailbox[to]
	m.mu.RUnlock()
	if !ok {
		return errs.NewNotFound("agent %q not registered", to)
	}
	msg := Message{MessageID: uuid.NewString(), From: from, To: to, Kind: "unicast", Payload: payload}
	select {
	case ch <- msg:
	default:
	}
	return nil
}

// Broadcast delivers a message to every registered agent except the sender.
func (m *Messenger) Broadcast(from string, payload map[string]any) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, ch := range m.mailbox {
		if id == from {
			continue
		}
		msg := Message{MessageID: uuid.NewString(), From: from, To: id, Kind: "broadcast", Payload: payload}
		select {
		case ch <- msg:
		default:
		}
	}
}

// Delegate sends a task-delegation message, a unicast tagged with kind
// "delegation" so the receiver's dispatch loop can distinguish intent.
func (m *Messenger) Delegate(from, to string, task map[string]any) error {
	m.mu.RLock()
	ch, ok := m.mailbox[to]
	m.mu.RUnlock()
	if !ok {
		return errs.NewNotFound("agent %q not registered", to)
	}
	msg := Message{MessageID: uuid.NewString(), From: from, To: to, Kind: "delegation", Payload: task}
	select {
	case ch <- msg:
	default:
	}
	return nil
}

// RequestHelp enqueues a help request for the orchestrator's routing loop and
// blocks until a response is correlated back, ctx is cancelled, or timeout
// elapses (default 30s).
func (m *Messenger) RequestHelp(ctx context.Context, from, capability string, payload map[string]any, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = defaultHelpTimeout
	}
	correlationID := uuid.NewString()
	waitCh := make(chan Message, 1)

	m.mu.Lock()
	m.waiters[correlationID] = waitCh
	m.pending = append(m.pending, HelpRequest{
		CorrelationID: correlationID,
		From:          from,
		Capability:    capability,
		Payload:       payload,
		respond:       waitCh,
	})
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.waiters, correlationID)
		m.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waitCh:
		return resp, nil
	case <-timer.C:
		return Message{}, errs.NewTimeout("help request %q timed out after %s", correlationID, timeout)
	case <-ctx.Done():
		return Message{}, errs.Wrap(errs.Timeout, ctx.Err(), "help request %q cancelled", correlationID)
	}
}

// DrainPendingHelpRequests removes and returns all queued help requests, for
// the orchestrator's 100ms routing loop.
func (m *Messenger) DrainPendingHelpRequests() []HelpRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// RespondHelp delivers a help-response message, correlating it back to the
// original requester's waiter.
func (m *Messenger) RespondHelp(correlationID string, responderID string, payload map[string]any) bool {
	m.mu.RLock()
	ch, ok := m.waiters[correlationID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	msg := Message{
		MessageID:     uuid.NewString(),
		From:          responderID,
		Kind:          "help_response",
		CorrelationID: correlationID,
		Payload:       payload,
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

// AgentsWithCapability returns registered agents advertising capability,
// IDLE agents first (the orchestrator's routing preference).
func (m *Messenger) AgentsWithCapability(capability string) []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idle, busy []*Agent
	for _, a := range m.agents {
		if !a.HasCapability(capability) {
			continue
		}
		if a.CurrentStatus() == StatusIdle {
			idle = append(idle, a)
		} else {
			busy = append(busy, a)
		}
	}
	return append(idle, busy...)
}

// Consensus returns the majority value among decisions by string equality,
// per spec.md §4.I; ok is false unless one value holds a strict majority.
func Consensus(decisions []string) (string, bool) {
	if len(decisions) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(decisions))
	for _, d := range decisions {
		counts[d]++
	}
	var winner string
	best := 0
	for d, c := range counts {
		if c > best {
			best = c
			winner = d
		}
	}
	return winner, best*2 > len(decisions)
}
