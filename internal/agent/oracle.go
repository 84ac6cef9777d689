// ABOUTME: Oracles collect participant decisions for a proposal, either by
// ABOUTME: asking peer agents over the relay or by local heuristics.

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yotei-sh/yotei/internal/messenger"
	"github.com/yotei-sh/yotei/internal/model"
)

// ParticipantResponse is one agent's answer to a proposal. Answered is false
// when the peer never replied; an unanswered proposal is not a decline.
type ParticipantResponse struct {
	Decision        model.Decision
	EnthusiasmLevel int
	Reasoning       string
	Modifications   []string
	Answered        bool
}

// Oracle collects proposal responses from an event's participants. The
// proposer's own agent is excluded; the engine records its acceptance.
type Oracle interface {
	CollectResponses(ctx context.Context, ev *model.Event, p *model.Proposal, proposerAgentID string) map[string]ParticipantResponse
}

// HeuristicOracle predicts responses from local relationship context. Used
// when peers are offline and in the demo flow.
type HeuristicOracle struct {
	// Friends is keyed by the friend's user id.
	Friends map[string]*model.FriendRelationship
}

// CollectResponses accepts for any participant whose enthusiasm baseline is
// at least 3 and whose sensitivities do not appear in the proposal's
// reasoning; everyone else asks for modifications.
func (o *HeuristicOracle) CollectResponses(ctx context.Context, ev *model.Event, p *model.Proposal, proposerAgentID string) map[string]ParticipantResponse {
	out := make(map[string]ParticipantResponse)
	reasoning := strings.ToLower(p.Reasoning)

	for _, part := range ev.Participants {
		if part.AgentID == proposerAgentID {
			continue
		}

		enthusiasm := 3
		var sensitivities []string
		if f, ok := o.Friends[part.UserID]; ok {
			if f.EnthusiasmBaseline > 0 {
				enthusiasm = f.EnthusiasmBaseline
			}
			sensitivities = f.Sensitivities
		}

		conflict := false
		for _, sens := range sensitivities {
			if sens != "" && strings.Contains(reasoning, strings.ToLower(sens)) {
				conflict = true
				break
			}
		}

		if enthusiasm >= 3 && !conflict {
			out[part.AgentID] = ParticipantResponse{
				Decision:        model.DecisionAccept,
				EnthusiasmLevel: enthusiasm,
				Answered:        true,
			}
		} else {
			out[part.AgentID] = ParticipantResponse{
				Decision:        model.DecisionModify,
				EnthusiasmLevel: enthusiasm,
				Reasoning:       "requested changes to the plan",
				Answered:        true,
			}
		}
	}
	return out
}

// RelayOracle asks each participant's agent over the relay and waits for
// real answers. Peers race concurrently; each send honors the proposal
// message's own response window.
type RelayOracle struct {
	Messenger *messenger.Messenger

	// PerPeerTimeout caps the wait for one peer. Zero means the message's
	// default window applies.
	PerPeerTimeout time.Duration
}

func (o *RelayOracle) CollectResponses(ctx context.Context, ev *model.Event, p *model.Proposal, proposerAgentID string) map[string]ParticipantResponse {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ParticipantResponse)
	)

	for _, part := range ev.Participants {
		if part.AgentID == proposerAgentID {
			continue
		}

		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()

			sctx := ctx
			if o.PerPeerTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, o.PerPeerTimeout)
				defer cancel()
			}

			resp, err := o.Messenger.SendProposal(sctx, agentID, ev.ID, p)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				out[agentID] = ParticipantResponse{
					Decision:        resp.Decision,
					EnthusiasmLevel: resp.EnthusiasmLevel,
					Reasoning:       resp.Reasoning,
					Modifications:   resp.ModificationsRequested,
					Answered:        true,
				}
			case errors.Is(err, messenger.ErrResponseTimeout),
				errors.Is(err, messenger.ErrAgentOffline),
				errors.Is(err, context.DeadlineExceeded):
				out[agentID] = ParticipantResponse{Answered: false}
			default:
				out[agentID] = ParticipantResponse{Answered: false, Reasoning: err.Error()}
			}
		}(part.AgentID)
	}

	wg.Wait()
	return out
}
