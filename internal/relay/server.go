// ABOUTME: Relay server: connection registry, direct/broadcast/topic routing.
// ABOUTME: The registry is the only shared mutable state and is mutex-guarded.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yotei-sh/yotei/internal/metrics"
)

const (
	// sendTimeout bounds a single write to one connection.
	sendTimeout = 10 * time.Second

	// replayTTL and replaySize bound the replay dedupe cache.
	replayTTL  = 5 * time.Minute
	replaySize = 4096
)

// ErrAgentOffline indicates the direct recipient is not connected.
var ErrAgentOffline = errors.New("agent is offline")

// Server routes agent messages between websocket connections. All access to
// the connection and subscription maps goes through mu; sends happen outside
// the lock so a slow connection never stalls the registry.
type Server struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
	subs  map[string]map[string]struct{} // event id -> agent ids

	seen *replayCache
}

// NewServer creates a relay server. Pass nil logger for the default.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger.With("component", "relay"),
		conns:  make(map[string]*Connection),
		subs:   make(map[string]map[string]struct{}),
		seen:   newReplayCache(replayTTL, replaySize),
	}
}

// Close releases server resources. Live connections are closed.
func (s *Server) Close() {
	s.seen.Close()

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*Connection)
	s.subs = make(map[string]map[string]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.close("server shutdown")
	}
}

// Register adds a connection for the agent id, replacing any stale one, and
// announces the arrival to everyone else.
func (s *Server) Register(ctx context.Context, agentID string, sock *websocket.Conn) *Connection {
	conn := newConnection(agentID, sock)

	s.mu.Lock()
	old := s.conns[agentID]
	s.conns[agentID] = conn
	total := len(s.conns)
	s.mu.Unlock()

	if old != nil {
		// The stale socket may be unresponsive; skip the close handshake so
		// the replacing connection registers immediately.
		old.closeNow()
	}

	metrics.ConnectsTotal.Inc()
	metrics.AgentsOnline.Set(float64(total))
	s.logger.Info("agent connected", "agent_id", agentID, "total_agents", total)

	s.broadcastNotice(ctx, SystemNotice{
		Notice:    NoticeAgentConnected,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
	}, agentID)
	return conn
}

// Unregister removes the agent's connection and its subscriptions, then
// announces the departure. The departing connection must be passed in: when
// the agent has already reconnected, the registry holds a newer connection
// under the same id and the stale session must not tear it down.
func (s *Server) Unregister(ctx context.Context, agentID string, conn *Connection) {
	s.mu.Lock()
	if s.conns[agentID] != conn {
		s.mu.Unlock()
		conn.closeNow()
		return
	}
	delete(s.conns, agentID)
	for eventID, members := range s.subs {
		delete(members, agentID)
		if len(members) == 0 {
			delete(s.subs, eventID)
		}
	}
	total := len(s.conns)
	s.mu.Unlock()

	conn.close("unregistered")

	metrics.AgentsOnline.Set(float64(total))
	s.logger.Info("agent disconnected", "agent_id", agentID, "total_agents", total)

	s.broadcastNotice(ctx, SystemNotice{
		Notice:    NoticeAgentDisconnected,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
	}, "")
}

// Subscribe adds the agent to an event topic.
func (s *Server) Subscribe(agentID, eventID string) {
	s.mu.Lock()
	if _, ok := s.subs[eventID]; !ok {
		s.subs[eventID] = make(map[string]struct{})
	}
	s.subs[eventID][agentID] = struct{}{}
	conn := s.conns[agentID]
	s.mu.Unlock()

	if conn != nil {
		conn.subscribe(eventID)
	}
}

// Unsubscribe removes the agent from an event topic.
func (s *Server) Unsubscribe(agentID, eventID string) {
	s.mu.Lock()
	if members, ok := s.subs[eventID]; ok {
		delete(members, agentID)
		if len(members) == 0 {
			delete(s.subs, eventID)
		}
	}
	conn := s.conns[agentID]
	s.mu.Unlock()

	if conn != nil {
		conn.unsubscribe(eventID)
	}
}

// HandleRaw processes one frame from a connected agent: a control command
// when the "cmd" key is set, otherwise an agent message to route. Malformed
// envelopes earn the sender a typed error, never a dropped registry.
func (s *Server) HandleRaw(ctx context.Context, senderID string, data []byte) {
	var ctl Control
	if err := json.Unmarshal(data, &ctl); err == nil && ctl.Cmd != "" {
		s.handleControl(ctx, senderID, ctl)
		return
	}

	msg, err := Parse(data)
	if err != nil {
		s.sendError(ctx, senderID, CodeInvalidMessage, err.Error(), "")
		return
	}

	if s.seen.CheckAndMark(msg.ID) {
		s.logger.Debug("dropping replayed message", "message_id", msg.ID, "sender", senderID)
		return
	}

	// Never log unshareable traffic beyond routing it.
	if msg.Shareable {
		s.logger.Debug("routing message",
			"message_id", msg.ID,
			"type", msg.Type,
			"sender", msg.Sender,
			"recipient", msg.Recipient,
			"event_id", msg.EventID,
		)
	}

	switch {
	case msg.Recipient == RecipientBroadcast:
		metrics.MessagesRouted.WithLabelValues(string(msg.Type), "broadcast").Inc()
		s.broadcast(ctx, msg, senderID)
	default:
		if eventID, ok := ParseTopic(msg.Recipient); ok {
			metrics.MessagesRouted.WithLabelValues(string(msg.Type), "topic").Inc()
			s.broadcastTopic(ctx, eventID, msg, senderID)
			return
		}
		metrics.MessagesRouted.WithLabelValues(string(msg.Type), "direct").Inc()
		if err := s.routeDirect(ctx, msg); errors.Is(err, ErrAgentOffline) && msg.RequiresResponse {
			s.sendError(ctx, msg.Sender, CodeAgentOffline,
				"agent "+msg.Recipient+" is not online", msg.ID)
		}
	}
}

func (s *Server) handleControl(ctx context.Context, senderID string, ctl Control) {
	s.mu.RLock()
	conn := s.conns[senderID]
	s.mu.RUnlock()
	if conn == nil {
		return
	}

	switch ctl.Cmd {
	case CmdSubscribe:
		s.Subscribe(senderID, ctl.EventID)
		_ = conn.sendJSON(ctx, Control{Status: "subscribed", EventID: ctl.EventID})
	case CmdUnsubscribe:
		s.Unsubscribe(senderID, ctl.EventID)
		_ = conn.sendJSON(ctx, Control{Status: "unsubscribed", EventID: ctl.EventID})
	case CmdPing:
		conn.TouchPing()
		_ = conn.sendJSON(ctx, Control{Cmd: CmdPong})
	default:
		// Unknown commands are no-ops for forward compatibility.
	}
}

// routeDirect delivers to a single agent. Returns ErrAgentOffline when the
// recipient has no connection.
func (s *Server) routeDirect(ctx context.Context, msg *Message) error {
	s.mu.RLock()
	conn := s.conns[msg.Recipient]
	s.mu.RUnlock()

	if conn == nil {
		return ErrAgentOffline
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := conn.Send(sctx, msg); err != nil {
		s.logger.Warn("direct delivery failed", "recipient", msg.Recipient, "error", err)
		return err
	}
	return nil
}

// broadcast fans the message out to every connection except the excluded
// agent. Deliveries to distinct connections proceed concurrently.
func (s *Server) broadcast(ctx context.Context, msg *Message, exclude string) {
	s.fanOut(ctx, s.snapshot(exclude), func(c *Connection, sctx context.Context) error {
		return c.Send(sctx, msg)
	})
}

// broadcastTopic fans out to the event's subscribers only.
func (s *Server) broadcastTopic(ctx context.Context, eventID string, msg *Message, exclude string) {
	s.mu.RLock()
	members := s.subs[eventID]
	targets := make([]*Connection, 0, len(members))
	for agentID := range members {
		if agentID == exclude {
			continue
		}
		if conn, ok := s.conns[agentID]; ok {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	s.fanOut(ctx, targets, func(c *Connection, sctx context.Context) error {
		return c.Send(sctx, msg)
	})
}

// broadcastNotice sends a system notice to all connections except one.
func (s *Server) broadcastNotice(ctx context.Context, n SystemNotice, exclude string) {
	s.fanOut(ctx, s.snapshot(exclude), func(c *Connection, sctx context.Context) error {
		return c.sendJSON(sctx, n)
	})
}

func (s *Server) snapshot(exclude string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]*Connection, 0, len(s.conns))
	for agentID, conn := range s.conns {
		if agentID != exclude {
			targets = append(targets, conn)
		}
	}
	return targets
}

// fanOut delivers to each target on its own goroutine and waits for all.
// A failed delivery is logged and skipped; the receive loop notices dead
// sockets and unregisters them.
func (s *Server) fanOut(ctx context.Context, targets []*Connection, send func(*Connection, context.Context) error) {
	var wg sync.WaitGroup
	for _, conn := range targets {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := send(c, sctx); err != nil {
				s.logger.Warn("fan-out delivery failed", "recipient", c.AgentID, "error", err)
			}
		}(conn)
	}
	wg.Wait()
}

// sendError returns a typed error message to an agent.
func (s *Server) sendError(ctx context.Context, agentID, code, text, replyTo string) {
	metrics.RoutingErrors.WithLabelValues(code).Inc()

	s.mu.RLock()
	conn := s.conns[agentID]
	s.mu.RUnlock()
	if conn == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := conn.Send(sctx, NewError(RelaySender, agentID, code, text, replyTo)); err != nil {
		s.logger.Warn("error delivery failed", "recipient", agentID, "error", err)
	}
}

// OnlineAgents returns the connected agent ids, sorted.
func (s *Server) OnlineAgents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.conns))
	for agentID := range s.conns {
		out = append(out, agentID)
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether an agent is currently connected.
func (s *Server) IsOnline(agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[agentID]
	return ok
}

// AgentStatus is the health view of one connection.
type AgentStatus struct {
	AgentID       string    `json:"agent_id"`
	Online        bool      `json:"online"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastPing      time.Time `json:"last_ping"`
	Subscriptions []string  `json:"subscribed_events,omitempty"`
}

// Status returns the agent's connection status, or false when offline.
func (s *Server) Status(agentID string) (AgentStatus, bool) {
	s.mu.RLock()
	conn := s.conns[agentID]
	s.mu.RUnlock()

	if conn == nil {
		return AgentStatus{}, false
	}
	return AgentStatus{
		AgentID:       agentID,
		Online:        true,
		ConnectedAt:   conn.ConnectedAt,
		LastPing:      conn.LastPing(),
		Subscriptions: conn.Subscriptions(),
	}, true
}

// Handler returns the relay's HTTP surface: the websocket endpoint, health
// and agent listings, and Prometheus metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/agents", s.handleAgents)
	r.Get("/agents/{id}", s.handleAgentStatus)
	r.Get("/ws/{agent_id}", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":       "yotei-relay",
		"status":        "running",
		"agents_online": len(s.OnlineAgents()),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.OnlineAgents()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	status, ok := s.Status(agentID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"agent_id": agentID,
			"online":   false,
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleWS upgrades the connection and runs the read loop until the agent
// disconnects. The agent id comes from the path; the relay trusts it the way
// the original system does.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	if agentID == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "agent_id", agentID, "error", err)
		return
	}

	ctx := r.Context()
	conn := s.Register(ctx, agentID, sock)
	defer s.Unregister(context.WithoutCancel(ctx), agentID, conn)

	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("read failed", "agent_id", agentID, "error", err)
			}
			return
		}
		s.HandleRaw(ctx, agentID, data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
