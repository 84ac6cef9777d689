// ABOUTME: Agent-side relay client: websocket session, request/response
// ABOUTME: correlation, and typed helpers for the coordination message kinds.

package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/yotei-sh/yotei/internal/model"
	"github.com/yotei-sh/yotei/internal/relay"
)

// ErrResponseTimeout indicates the peer did not answer within the window.
// Callers treat it as "no answer", never as a decline.
var ErrResponseTimeout = errors.New("timed out waiting for response")

// ErrDisconnected indicates the relay connection dropped while a request
// was still in flight.
var ErrDisconnected = errors.New("relay connection closed")

// Handler processes one inbound message. Returning a non-nil message sends
// it back through the relay.
type Handler func(ctx context.Context, msg *relay.Message) (*relay.Message, error)

// Messenger is one agent's connection to the relay. Safe for concurrent use.
type Messenger struct {
	agentID string
	logger  *slog.Logger

	mu       sync.Mutex
	sock     *websocket.Conn
	pending  map[string]chan *relay.Message
	handlers map[relay.MessageType]Handler
	closed   bool

	done chan struct{}
}

// New creates a messenger for the agent. Call Connect before sending.
func New(agentID string, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		agentID:  agentID,
		logger:   logger.With("component", "messenger", "agent_id", agentID),
		pending:  make(map[string]chan *relay.Message),
		handlers: make(map[relay.MessageType]Handler),
		done:     make(chan struct{}),
	}
}

// Handle registers a handler for a message type. Types without a handler are
// ignored. Registration must happen before Connect.
func (m *Messenger) Handle(t relay.MessageType, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = h
}

// Connect dials the relay websocket endpoint and starts the receive loop.
// The relay learns our agent id from the path; a hello announces the user
// behind the agent.
func (m *Messenger) Connect(ctx context.Context, relayURL, userName string) error {
	sock, _, err := websocket.Dial(ctx, relayURL+"/ws/"+m.agentID, nil)
	if err != nil {
		return fmt.Errorf("dialing relay: %w", err)
	}

	m.mu.Lock()
	m.sock = sock
	m.closed = false
	m.mu.Unlock()

	go m.receiveLoop(sock)

	if err := m.send(ctx, relay.NewHello(m.agentID, userName)); err != nil {
		_ = sock.CloseNow()
		m.teardown()
		return fmt.Errorf("sending hello: %w", err)
	}
	m.logger.Info("connected to relay", "relay_url", relayURL)
	return nil
}

// Close announces departure and drops the connection. Pending requests fail
// with ErrDisconnected.
func (m *Messenger) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.sock == nil {
		m.mu.Unlock()
		return nil
	}
	sock := m.sock
	m.mu.Unlock()

	_ = m.send(ctx, relay.NewGoodbye(m.agentID))
	err := sock.Close(websocket.StatusNormalClosure, "goodbye")
	m.teardown()
	return err
}

func (m *Messenger) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.sock = nil
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
	close(m.done)
}

// Done is closed when the connection ends.
func (m *Messenger) Done() <-chan struct{} { return m.done }

func (m *Messenger) receiveLoop(sock *websocket.Conn) {
	defer m.teardown()
	ctx := context.Background()

	for {
		var msg relay.Message
		if err := wsjson.Read(ctx, sock, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 {
				m.logger.Debug("receive loop ended", "error", err)
			}
			return
		}
		m.dispatch(ctx, &msg)
	}
}

// dispatch resolves the message against pending requests first, then the
// handler table. Control frames and system notices have no type and fall
// through silently.
func (m *Messenger) dispatch(ctx context.Context, msg *relay.Message) {
	if msg.ReplyTo != "" {
		m.mu.Lock()
		ch, ok := m.pending[msg.ReplyTo]
		if ok {
			delete(m.pending, msg.ReplyTo)
		}
		m.mu.Unlock()
		if ok {
			ch <- msg
			close(ch)
			return
		}
	}

	m.mu.Lock()
	h := m.handlers[msg.Type]
	m.mu.Unlock()
	if h == nil {
		return
	}

	reply, err := h(ctx, msg)
	if err != nil {
		m.logger.Warn("handler failed", "type", msg.Type, "error", err)
		return
	}
	if reply != nil {
		if err := m.send(ctx, reply); err != nil {
			m.logger.Warn("reply send failed", "type", reply.Type, "error", err)
		}
	}
}

// Send delivers a message through the relay without waiting for an answer.
func (m *Messenger) Send(ctx context.Context, msg *relay.Message) error {
	return m.send(ctx, msg)
}

func (m *Messenger) send(ctx context.Context, msg *relay.Message) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrDisconnected
	}
	return wsjson.Write(ctx, sock, msg)
}

// SendAndWait delivers a message and blocks until the correlated reply
// arrives, the message's response window lapses, or the connection drops.
func (m *Messenger) SendAndWait(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	ch := make(chan *relay.Message, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrDisconnected
	}
	m.pending[msg.ID] = ch
	m.mu.Unlock()

	if err := m.send(ctx, msg); err != nil {
		m.abandon(msg.ID)
		return nil, err
	}

	timer := time.NewTimer(msg.WaitTimeout())
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return reply, nil
	case <-timer.C:
		m.abandon(msg.ID)
		return nil, fmt.Errorf("%w after %s", ErrResponseTimeout, msg.WaitTimeout())
	case <-ctx.Done():
		m.abandon(msg.ID)
		return nil, ctx.Err()
	}
}

func (m *Messenger) abandon(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// sendControl issues a relay control command.
func (m *Messenger) sendControl(ctx context.Context, ctl relay.Control) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrDisconnected
	}
	return wsjson.Write(ctx, sock, ctl)
}

// SubscribeEvent joins the event's topic so updates reach this agent.
func (m *Messenger) SubscribeEvent(ctx context.Context, eventID string) error {
	return m.sendControl(ctx, relay.Control{Cmd: relay.CmdSubscribe, EventID: eventID})
}

// UnsubscribeEvent leaves the event's topic.
func (m *Messenger) UnsubscribeEvent(ctx context.Context, eventID string) error {
	return m.sendControl(ctx, relay.Control{Cmd: relay.CmdUnsubscribe, EventID: eventID})
}

// Ping keeps the relay's liveness view fresh.
func (m *Messenger) Ping(ctx context.Context) error {
	return m.sendControl(ctx, relay.Control{Cmd: relay.CmdPing})
}

// QueryAvailability asks a peer agent for its user's open slots in a date
// range and waits for the answer.
func (m *Messenger) QueryAvailability(ctx context.Context, peerID, eventID string, start, end time.Time, eventType string) (*relay.AvailabilityResponsePayload, error) {
	msg := relay.NewAvailabilityQuery(m.agentID, peerID, eventID, start, end, eventType)
	reply, err := m.SendAndWait(ctx, msg)
	if err != nil {
		return nil, err
	}
	if reply.Type == relay.TypeError {
		return nil, relayError(reply)
	}
	var resp relay.AvailabilityResponsePayload
	if err := reply.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendProposal delivers an event proposal to a peer and waits for the
// peer's decision.
func (m *Messenger) SendProposal(ctx context.Context, peerID, eventID string, p *model.Proposal) (*relay.ProposalResponsePayload, error) {
	msg := relay.NewProposal(m.agentID, peerID, eventID, relay.ProposalPayloadFrom(p))
	reply, err := m.SendAndWait(ctx, msg)
	if err != nil {
		return nil, err
	}
	if reply.Type == relay.TypeError {
		return nil, relayError(reply)
	}
	var resp relay.ProposalResponsePayload
	if err := reply.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RespondToProposal answers a previously received proposal message.
func (m *Messenger) RespondToProposal(ctx context.Context, original *relay.Message, resp relay.ProposalResponsePayload) error {
	msg := relay.NewProposalResponse(m.agentID, original.Sender, original.EventID, original.ID, resp)
	return m.send(ctx, msg)
}

// SendNudge delivers a gentle reminder about a pending event.
func (m *Messenger) SendNudge(ctx context.Context, peerID, eventID, topic, text string) error {
	return m.send(ctx, relay.NewNudge(m.agentID, peerID, eventID, topic, text))
}

// CheckVibe asks a peer how its user feels about an upcoming event.
func (m *Messenger) CheckVibe(ctx context.Context, peerID, eventID string) (*relay.VibeResponsePayload, error) {
	msg := relay.NewVibeCheck(m.agentID, peerID, eventID)
	reply, err := m.SendAndWait(ctx, msg)
	if err != nil {
		return nil, err
	}
	if reply.Type == relay.TypeError {
		return nil, relayError(reply)
	}
	var resp relay.VibeResponsePayload
	if err := reply.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RespondToVibe answers a vibe check.
func (m *Messenger) RespondToVibe(ctx context.Context, original *relay.Message, enthusiasm int, concerns []string) error {
	msg := relay.NewVibeResponse(m.agentID, original.Sender, original.EventID, original.ID, enthusiasm, concerns)
	return m.send(ctx, msg)
}

// AnnounceEventUpdate publishes an update to the event's subscribers.
func (m *Messenger) AnnounceEventUpdate(ctx context.Context, eventID string, p relay.EventUpdatePayload) error {
	return m.send(ctx, relay.NewEventUpdate(m.agentID, eventID, p))
}

// AnnounceCancellation tells the event's subscribers it is off.
func (m *Messenger) AnnounceCancellation(ctx context.Context, eventID, reason string) error {
	return m.send(ctx, relay.NewEventCancelled(m.agentID, eventID, reason))
}

// relayError converts an error message into a Go error.
func relayError(msg *relay.Message) error {
	var p relay.ErrorPayload
	if err := msg.DecodePayload(&p); err != nil {
		return fmt.Errorf("relay error with undecodable payload: %w", err)
	}
	if p.Code == relay.CodeAgentOffline {
		return fmt.Errorf("%w: %s", ErrAgentOffline, p.Message)
	}
	return fmt.Errorf("relay error %s: %s", p.Code, p.Message)
}

// ErrAgentOffline mirrors the relay's offline error for callers that want
// to branch on it.
var ErrAgentOffline = errors.New("peer agent is offline")
