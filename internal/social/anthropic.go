// ABOUTME: Anthropic-backed Intel implementation. Prompts include private
// ABOUTME: notes as local context; completions are parsed, never relayed raw.

package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yotei-sh/yotei/internal/model"
)

// Options configures the Anthropic adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// AnthropicIntel implements Intel on the Anthropic Messages API.
type AnthropicIntel struct {
	client *anthropic.Client
	opts   Options
	logger *slog.Logger
}

// NewAnthropicIntel creates the adapter. Without an API key option the
// client falls back to the standard environment variable.
func NewAnthropicIntel(logger *slog.Logger, optFns ...func(o *Options)) *AnthropicIntel {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicIntel{
		client: &client,
		opts:   opts,
		logger: logger.With("component", "social"),
	}
}

// complete sends one prompt and returns the first JSON object in the reply.
func (a *AnthropicIntel) complete(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return extractJSON(sb.String())
}

func (a *AnthropicIntel) CreateProposal(ctx context.Context, pc ProposalContext) (*model.Proposal, string, error) {
	prompt := fmt.Sprintf(`
You are coordinating an event for %s.

EVENT: %s (%s)
PARTICIPANTS: %s

YOUR HUMAN'S PREFERENCES:
%s

PRIVATE NOTES (NEVER SHARE THESE):
%s

AVAILABLE TIME SLOTS (everyone is free):
%s

Based on this context, create an optimal event proposal. Consider:
1. The best time that works for everyone
2. A suitable location/activity
3. Budget considerations (without making anyone uncomfortable)
4. Any social dynamics to navigate

Respond with a JSON object:
{
    "proposed_date": "YYYY-MM-DD",
    "proposed_time": "HH:MM",
    "duration_hours": 2,
    "location_name": "Name of place",
    "location_city": "City",
    "activity_suggestion": "What to do there",
    "estimated_cost_per_person": 50,
    "reasoning": "Why this plan works well (for display)",
    "private_reasoning": "Social dynamics considered (not shared)"
}`,
		pc.UserName,
		pc.Event.Title, pc.Event.Type,
		participantNames(pc.Event),
		formatPreferences(pc.Preferences),
		formatNotes(pc.PrivateNotes),
		formatSlots(pc.AvailableSlots),
	)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, "", err
	}
	return parseProposal(raw, "AGENT-"+pc.Event.CreatorID)
}

func (a *AnthropicIntel) EvaluateProposal(ctx context.Context, ec EvaluationContext) (*Evaluation, error) {
	when := "TBD"
	if ec.Proposal.Window != nil {
		when = ec.Proposal.Window.Start.Format("Monday Jan 02, 2006 at 3:04 PM")
	}
	where := "TBD"
	if ec.Proposal.Location != nil {
		where = ec.Proposal.Location.Name
	}
	cost := "Unknown"
	if ec.Proposal.EstCostPerPerson != nil {
		cost = fmt.Sprintf("%.0f", *ec.Proposal.EstCostPerPerson)
	}

	prompt := fmt.Sprintf(`
You are evaluating an event proposal for %s.

EVENT: %s
PROPOSAL:
- Date: %s
- Location: %s
- Activity: %s
- Est. Cost: $%s/person

YOUR HUMAN'S PREFERENCES:
%s

PRIVATE NOTES (your context, not shared):
%s

Should your human accept this proposal? Consider:
1. Does the time work with their schedule?
2. Does the location/activity fit their preferences?
3. Is the budget reasonable for them?
4. Any social dynamics to consider?

Respond with a JSON object:
{
    "decision": "accept" | "modify" | "decline",
    "enthusiasm_level": 3,
    "modifications_requested": ["list of changes if modify"],
    "reasoning": "Brief explanation (shared with other agents)",
    "private_reasoning": "Social dynamics considered (not shared)"
}`,
		ec.UserName,
		ec.Event.Title,
		when, where, ec.Proposal.Activity, cost,
		formatPreferences(ec.Preferences),
		formatNotes(ec.PrivateNotes),
	)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseEvaluation(raw)
}

func (a *AnthropicIntel) MediateConflict(ctx context.Context, mc MediationContext) (*Mediation, error) {
	conflicts := make([]string, 0, len(mc.Conflicts))
	for _, c := range mc.Conflicts {
		conflicts = append(conflicts, fmt.Sprintf("- %s: %s", c.Participant, c.Preference))
	}
	constraints := make([]string, 0, len(mc.Constraints))
	for _, c := range mc.Constraints {
		constraints = append(constraints, "- "+c)
	}

	prompt := fmt.Sprintf(`
You are mediating between different preferences for an event.

EVENT: %s
PARTICIPANTS: %s

CONFLICTING PREFERENCES:
%s

CONSTRAINTS:
%s

Find a compromise that:
1. Addresses the core needs of each participant
2. Doesn't make anyone feel their preferences were ignored
3. Results in an event everyone can enjoy

Respond with a JSON object:
{
    "compromise_proposal": {
        "date": "YYYY-MM-DD",
        "time": "HH:MM",
        "location": "Suggested location",
        "activity": "Suggested activity",
        "reasoning": "How this addresses everyone's needs"
    },
    "individual_messaging": {
        "participant_name": "Personalized message about why this works for them"
    }
}`,
		mc.Event.Title,
		participantNames(mc.Event),
		strings.Join(conflicts, "\n"),
		strings.Join(constraints, "\n"),
	)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var med Mediation
	if err := json.Unmarshal(raw, &med); err != nil {
		return nil, fmt.Errorf("decoding mediation: %w", err)
	}
	return &med, nil
}

func (a *AnthropicIntel) NudgeMessage(ctx context.Context, nc NudgeContext) (string, error) {
	prompt := fmt.Sprintf(`
Generate a friendly reminder message for %s about: %s

Context:
- Relationship: %s
- Their communication style preference: %s

The message should be:
- Warm and friendly, not pushy
- Appropriate for the relationship type
- Brief (1-2 sentences)

Respond with JSON: {"message": "the nudge message"}`,
		nc.FriendName, nc.Topic, nc.RelationshipType, nc.CommunicationStyle,
	)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return "Hey! Just a friendly reminder about " + nc.Topic, nil
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Message == "" {
		return "Hey! Just a friendly reminder about " + nc.Topic, nil
	}
	return out.Message, nil
}

func (a *AnthropicIntel) AnalyzeGroupDynamics(ctx context.Context, gc GroupContext) (*GroupAnalysis, error) {
	names := make([]string, 0, len(gc.Relationships))
	for name := range gc.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		rel := gc.Relationships[name]
		notes := rel.PrivateNotes
		if notes == "" {
			notes = "none"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s, notes: %s", name, rel.Type, notes))
	}

	prompt := fmt.Sprintf(`
Analyze the social dynamics for an event with these participants: %s

Relationship context:
%s

Respond with JSON:
{
    "group_vibe": "positive/neutral/needs_attention",
    "potential_issues": ["list of things to be mindful of"],
    "suggestions": ["tips for making this gathering successful"],
    "seating_or_pairing_hints": ["if applicable, who should be near/far from whom"]
}`,
		strings.Join(gc.Participants, ", "),
		strings.Join(lines, "\n"),
	)

	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var ga GroupAnalysis
	if err := json.Unmarshal(raw, &ga); err != nil {
		return nil, fmt.Errorf("decoding group analysis: %w", err)
	}
	return &ga, nil
}
