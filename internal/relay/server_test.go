// ABOUTME: Integration tests for the relay server driven through real
// ABOUTME: websocket clients: routing, topics, offline errors, dedupe

package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yotei-sh/yotei/internal/messenger"
	"github.com/yotei-sh/yotei/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) (*relay.Server, *httptest.Server, string) {
	t.Helper()
	srv := relay.NewServer(testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	wsURL := "ws://" + strings.TrimPrefix(ts.URL, "http://")
	return srv, ts, wsURL
}

func connectAgent(t *testing.T, wsURL, agentID, userName string) *messenger.Messenger {
	t.Helper()
	m := messenger.New(agentID, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx, wsURL, userName))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func waitOnline(t *testing.T, srv *relay.Server, agentIDs ...string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for _, id := range agentIDs {
		for !srv.IsOnline(id) {
			if time.Now().After(deadline) {
				t.Fatalf("agent %s never came online", id)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func recvMessage(t *testing.T, ch <-chan *relay.Message) *relay.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func capture(m *messenger.Messenger, mt relay.MessageType) <-chan *relay.Message {
	ch := make(chan *relay.Message, 8)
	m.Handle(mt, func(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
		ch <- msg
		return nil, nil
	})
	return ch
}

func TestDirectRouting(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	waitOnline(t, srv, "agent-a", "agent-b")

	got := capture(b, relay.TypeNudge)

	ctx := context.Background()
	require.NoError(t, a.SendNudge(ctx, "agent-b", "EVT-1", "dinner", "Still on for Friday?"))

	msg := recvMessage(t, got)
	assert.Equal(t, "agent-a", msg.Sender)
	assert.Equal(t, "EVT-1", msg.EventID)

	var p relay.NudgePayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, "dinner", p.Topic)
}

func TestRequestResponse(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	waitOnline(t, srv, "agent-a", "agent-b")

	b.Handle(relay.TypeVibeCheck, func(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
		return relay.NewVibeResponse("agent-b", msg.Sender, msg.EventID, msg.ID, 4, []string{"a bit tired"}), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	vibe, err := a.CheckVibe(ctx, "agent-b", "EVT-1")
	require.NoError(t, err)
	assert.Equal(t, 4, vibe.EnthusiasmLevel)
	assert.Equal(t, []string{"a bit tired"}, vibe.Concerns)
}

func TestBroadcastExcludesSender(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	waitOnline(t, srv, "agent-a", "agent-b")

	gotA := capture(a, relay.TypeHello)
	gotB := capture(b, relay.TypeHello)
	gotC := make(chan *relay.Message, 1)

	c := connectAgent(t, wsURL, "agent-c", "Carol")
	c.Handle(relay.TypeHello, func(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
		if msg.Sender == "agent-c" {
			gotC <- msg
		}
		return nil, nil
	})
	waitOnline(t, srv, "agent-c")

	// The hello sent during Connect reaches the existing agents.
	assert.Equal(t, "agent-c", recvMessage(t, gotA).Sender)
	assert.Equal(t, "agent-c", recvMessage(t, gotB).Sender)

	// But never the sender itself.
	select {
	case <-gotC:
		t.Fatal("broadcast was echoed back to its sender")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTopicRouting(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	c := connectAgent(t, wsURL, "agent-c", "Carol")
	waitOnline(t, srv, "agent-a", "agent-b", "agent-c")

	gotB := capture(b, relay.TypeEventUpdate)
	gotC := capture(c, relay.TypeEventUpdate)

	ctx := context.Background()
	require.NoError(t, b.SubscribeEvent(ctx, "EVT-9"))

	// Subscribe acks race with the update; give the relay a beat.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.AnnounceEventUpdate(ctx, "EVT-9", relay.EventUpdatePayload{Status: "confirmed"}))

	msg := recvMessage(t, gotB)
	assert.Equal(t, "EVT-9", msg.EventID)

	select {
	case <-gotC:
		t.Fatal("unsubscribed agent received a topic message")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestOfflineRecipient(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	waitOnline(t, srv, "agent-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.CheckVibe(ctx, "agent-ghost", "EVT-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, messenger.ErrAgentOffline)
}

func TestResponseTimeout(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	connectAgent(t, wsURL, "agent-b", "Bob") // no vibe handler: drops the check
	waitOnline(t, srv, "agent-a", "agent-b")

	msg := relay.NewVibeCheck("agent-a", "agent-b", "EVT-1")
	msg.ResponseTimeout = 1

	ctx := context.Background()
	start := time.Now()
	_, err := a.SendAndWait(ctx, msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, messenger.ErrResponseTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDuplicateDelivery(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	a := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	waitOnline(t, srv, "agent-a", "agent-b")

	got := capture(b, relay.TypeNudge)

	ctx := context.Background()
	msg := relay.NewNudge("agent-a", "agent-b", "EVT-1", "dinner", "Friday?")
	require.NoError(t, a.Send(ctx, msg))
	require.NoError(t, a.Send(ctx, msg))

	recvMessage(t, got)
	select {
	case <-got:
		t.Fatal("duplicate message ID was delivered twice")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestReconnectSameAgentID(t *testing.T) {
	srv, _, wsURL := startRelay(t)
	first := connectAgent(t, wsURL, "agent-a", "Alice")
	waitOnline(t, srv, "agent-a")

	// Reconnect under the same id, the way the daemon does after a drop.
	// The relay bumps the first connection to make room.
	second := connectAgent(t, wsURL, "agent-a", "Alice")
	b := connectAgent(t, wsURL, "agent-b", "Bob")
	waitOnline(t, srv, "agent-b")

	select {
	case <-first.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("first connection was never bumped")
	}

	// Let the bumped session's server-side teardown run to completion; it
	// must not evict the replacing connection.
	time.Sleep(500 * time.Millisecond)
	require.True(t, srv.IsOnline("agent-a"))

	got := capture(second, relay.TypeNudge)
	ctx := context.Background()
	require.NoError(t, b.SendNudge(ctx, "agent-a", "EVT-1", "dinner", "Still on?"))
	msg := recvMessage(t, got)
	assert.Equal(t, "agent-b", msg.Sender)
}

func TestHTTPEndpoints(t *testing.T) {
	srv, ts, wsURL := startRelay(t)
	connectAgent(t, wsURL, "agent-a", "Alice")
	waitOnline(t, srv, "agent-a")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	var agents struct {
		Agents []string `json:"agents"`
		Count  int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	assert.Equal(t, 1, agents.Count)
	assert.Equal(t, []string{"agent-a"}, agents.Agents)

	resp, err = http.Get(ts.URL + "/agents/agent-ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
