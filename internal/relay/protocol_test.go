// ABOUTME: Tests for the wire envelope: parsing, validation, shareable
// ABOUTME: default, topic addressing, and the message factories

package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yotei-sh/yotei/internal/model"
)

func TestParse_RoundTrip(t *testing.T) {
	orig := NewProposal("agent-a", "agent-b", "EVT-1", ProposalPayload{
		ProposalID: "PROP-1",
		Start:      time.Date(2026, 9, 19, 19, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 9, 19, 21, 30, 0, 0, time.UTC),
		Activity:   "tapas",
	})

	data, err := orig.Wire()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, TypeProposal, got.Type)
	assert.Equal(t, "EVT-1", got.EventID)
	assert.True(t, got.RequiresResponse)

	var pp ProposalPayload
	require.NoError(t, got.DecodePayload(&pp))
	assert.Equal(t, "PROP-1", pp.ProposalID)
	assert.Equal(t, "tapas", pp.Activity)
}

func TestParse_MissingFields(t *testing.T) {
	cases := []string{
		`{"type":"hello","sender":"a","recipient":"broadcast"}`,
		`{"id":"m1","sender":"a","recipient":"broadcast"}`,
		`{"id":"m1","type":"hello","recipient":"broadcast"}`,
		`{"id":"m1","type":"hello","sender":"a"}`,
		`not json at all`,
	}
	for _, raw := range cases {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "input: %s", raw)
	}
}

func TestParse_ShareableDefaultsTrue(t *testing.T) {
	got, err := Parse([]byte(`{"id":"m1","type":"hello","sender":"a","recipient":"broadcast"}`))
	require.NoError(t, err)
	assert.True(t, got.Shareable)

	got, err = Parse([]byte(`{"id":"m1","type":"hello","sender":"a","recipient":"broadcast","shareable":false}`))
	require.NoError(t, err)
	assert.False(t, got.Shareable)
}

func TestShareable_SurvivesWire(t *testing.T) {
	m := newMessage(TypeProposal, "a", "b", nil)
	m.Shareable = false

	data, err := m.Wire()
	require.NoError(t, err)

	// The field must serialize explicitly even when false, so a relay can
	// never mistake a private message for a shareable one.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	v, ok := raw["shareable"]
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestTopicRecipient(t *testing.T) {
	r := TopicRecipient("EVT-42")
	assert.Equal(t, "event:EVT-42", r)

	id, ok := ParseTopic(r)
	require.True(t, ok)
	assert.Equal(t, "EVT-42", id)

	_, ok = ParseTopic("agent-b")
	assert.False(t, ok)
}

func TestWaitTimeout(t *testing.T) {
	m := newMessage(TypeVibeCheck, "a", "b", nil)
	assert.Equal(t, DefaultResponseTimeout, m.WaitTimeout())

	m.ResponseTimeout = 30
	assert.Equal(t, 30*time.Second, m.WaitTimeout())
}

func TestFactories_ResponseCorrelation(t *testing.T) {
	query := NewAvailabilityQuery("agent-a", "agent-b", "EVT-1",
		time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC),
		"dinner")
	assert.True(t, query.RequiresResponse)

	var qp AvailabilityQueryPayload
	require.NoError(t, query.DecodePayload(&qp))
	assert.Equal(t, "2026-09-04", qp.StartDate)
	assert.Equal(t, "2026-10-04", qp.EndDate)

	resp := NewAvailabilityResponse("agent-b", "agent-a", "EVT-1", query.ID,
		AvailabilityResponsePayload{AvailableSlots: []model.SlotDescriptor{
			{DurationHours: 4},
		}})
	assert.Equal(t, query.ID, resp.ReplyTo)
	assert.False(t, resp.RequiresResponse)
}

func TestNewError_CarriesCode(t *testing.T) {
	m := NewError(RelaySender, "agent-a", CodeAgentOffline, "agent agent-b is not online", "MSG-orig")
	assert.Equal(t, TypeError, m.Type)
	assert.Equal(t, "MSG-orig", m.ReplyTo)

	var p ErrorPayload
	require.NoError(t, m.DecodePayload(&p))
	assert.Equal(t, CodeAgentOffline, p.Code)
}

func TestEventUpdate_AddressesTopic(t *testing.T) {
	m := NewEventUpdate("agent-a", "EVT-7", EventUpdatePayload{Status: "confirmed"})
	assert.Equal(t, "event:EVT-7", m.Recipient)
	assert.Equal(t, "EVT-7", m.EventID)

	cancelled := NewEventCancelled("agent-a", "EVT-7", "host is sick")
	var p EventUpdatePayload
	require.NoError(t, cancelled.DecodePayload(&p))
	assert.Equal(t, "cancelled", p.Status)
	assert.Equal(t, "host is sick", p.Detail)
}
