// ABOUTME: Entry point for the yotei agent: the daemon that represents one
// ABOUTME: human in event coordination, plus the local planning commands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"

	"github.com/yotei-sh/yotei/internal/agent"
	"github.com/yotei-sh/yotei/internal/config"
	"github.com/yotei-sh/yotei/internal/messenger"
	"github.com/yotei-sh/yotei/internal/model"
	"github.com/yotei-sh/yotei/internal/relay"
	"github.com/yotei-sh/yotei/internal/social"
	"github.com/yotei-sh/yotei/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

func getConfigPath() string {
	if envPath := os.Getenv("YOTEI_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "yotei.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "yotei", "yotei.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: yotei-agent <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  init --name NAME        Create your profile and agent")
		fmt.Println("  code                    Show your friend code")
		fmt.Println("  friend-add CODE NAME    Connect with a friend")
		fmt.Println("  friends                 List your friends")
		fmt.Println("  plan TITLE [TYPE]       Plan an event with all friends")
		fmt.Println("  events                  List your events")
		fmt.Println("  nudge NAME TOPIC        Nudge a friend about something")
		fmt.Println("  run                     Run the agent daemon")
		fmt.Println("  version                 Print version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(ctx)
	case "code":
		err = runCode(ctx)
	case "friend-add":
		err = runFriendAdd(ctx)
	case "friends":
		err = runFriends(ctx)
	case "plan":
		err = runPlan(ctx)
	case "events":
		err = runEvents(ctx)
	case "nudge":
		err = runNudge(ctx)
	case "run":
		err = runDaemon(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore loads the config and opens the local database.
func openStore() (*config.Config, store.Store, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return cfg, st, nil
}

// currentUser returns the local profile. One database holds one human.
func currentUser(ctx context.Context, st store.Store) (*model.User, error) {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("not initialized, run 'yotei-agent init --name NAME' first")
	}
	return users[0], nil
}

func newIntel(cfg *config.Config, logger *slog.Logger) social.Intel {
	return social.NewAnthropicIntel(logger, func(o *social.Options) {
		if cfg.Anthropic.APIKey != "" {
			o.APIKey = cfg.Anthropic.APIKey
		}
		if cfg.Anthropic.Model != "" {
			o.Model = anthropic.Model(cfg.Anthropic.Model)
		}
		o.Temperature = cfg.Anthropic.Temperature
		o.MaxTokens = cfg.Anthropic.MaxTokens
	})
}

func runInit(ctx context.Context) error {
	var name string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--name" || args[i] == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			name = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--name="):
			name = strings.TrimPrefix(args[i], "--name=")
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("--name flag is required")
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if users, err := st.ListUsers(ctx); err == nil && len(users) > 0 {
		return fmt.Errorf("already initialized as %s", users[0].Name)
	}

	user := model.NewUser(name)
	if err := st.SaveUser(ctx, user); err != nil {
		return err
	}
	if err := st.SaveSchedule(ctx, agent.DefaultSchedule(user.ID)); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Println("\nWelcome to yotei!")
	fmt.Printf("\n  Your agent:       %s\n", user.AgentID)
	fmt.Print("  Your friend code: ")
	cyan.Println(user.FriendCode())
	fmt.Println("\nShare your friend code so friends' agents can find yours.")
	return nil
}

func runCode(ctx context.Context) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	color.New(color.FgCyan).Println(user.FriendCode())
	return nil
}

func runFriendAdd(ctx context.Context) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: yotei-agent friend-add CODE NAME")
	}
	code := strings.ToUpper(os.Args[2])
	name := os.Args[3]

	if !strings.HasPrefix(code, "YT-") || strings.Count(code, "-") != 2 {
		return fmt.Errorf("invalid friend code %q", code)
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	if !user.CanAddFriends() {
		return fmt.Errorf("free tier friend limit reached, upgrade to add more")
	}

	// The code's suffix is the friend's user id fragment; the full id is
	// exchanged when the agents first talk.
	suffix := code[strings.LastIndex(code, "-")+1:]
	friend := &model.FriendRelationship{
		FriendID:    "YT-" + suffix,
		FriendName:  name,
		FriendCode:  code,
		Type:        model.RelFriend,
		ConnectedAt: time.Now().UTC(),
	}
	if existing, err := st.GetFriend(ctx, user.ID, friend.FriendID); err == nil {
		return fmt.Errorf("already connected with %s (%s)", existing.FriendName, existing.FriendCode)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := st.SaveFriend(ctx, user.ID, friend); err != nil {
		return err
	}
	user.FriendsCount++
	if err := st.SaveUser(ctx, user); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Connected with %s!\n", name)
	return nil
}

func runFriends(ctx context.Context) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	friends, err := st.ListFriends(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(friends) == 0 {
		fmt.Println("No friends yet. Use: yotei-agent friend-add CODE NAME")
		return nil
	}

	fmt.Printf("\nFriends of %s:\n\n", user.Name)
	for _, f := range friends {
		fmt.Printf("  %s  %s  (%s)\n", color.CyanString(f.FriendName), f.FriendCode, f.Type)
	}
	fmt.Println()
	return nil
}

func runPlan(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: yotei-agent plan TITLE [TYPE]")
	}
	title := os.Args[2]
	evType := model.EventHangout
	if len(os.Args) > 3 {
		evType = model.EventType(strings.ToLower(os.Args[3]))
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	friends, err := st.ListFriends(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(friends) == 0 {
		return fmt.Errorf("add some friends first: yotei-agent friend-add CODE NAME")
	}

	ev := model.NewEvent(user.ID, title, evType)
	ev.AddParticipant(user.ID, user.Name, user.AgentID)
	if self := ev.Participant(user.AgentID); self != nil {
		self.Confirmed = true
		self.EnthusiasmLevel = 5
	}
	for _, f := range friends {
		ev.AddParticipant(f.FriendID, f.FriendName, "AGENT-"+f.FriendID)
	}
	if err := st.SaveEvent(ctx, ev); err != nil {
		return err
	}

	fmt.Printf("\n%s\n", color.New(color.Bold).Sprint(strings.ToUpper(title)))
	fmt.Println(strings.Repeat("━", 40))
	fmt.Printf("Type: %s\n", evType)
	names := make([]string, 0, len(ev.Participants))
	for _, p := range ev.Participants {
		names = append(names, p.UserName)
	}
	fmt.Printf("Participants: %s\n", strings.Join(names, ", "))
	fmt.Println()

	logger := slog.Default()
	friendsByID := make(map[string]*model.FriendRelationship, len(friends))
	for _, f := range friends {
		friendsByID[f.FriendID] = f
	}
	eng := agent.NewEngine(st, newIntel(cfg, logger), &agent.HeuristicOracle{Friends: friendsByID}, logger)

	color.New(color.FgCyan).Println("Your agent is coordinating with the other agents...")
	outcome, err := eng.CoordinateEvent(ctx, user.ID, ev)
	if err != nil {
		return fmt.Errorf("coordination failed: %w", err)
	}

	fmt.Println()
	if outcome.Consensus {
		color.New(color.FgGreen).Println("Consensus reached!")
		if ev.Window != nil {
			fmt.Printf("  When:  %s\n", ev.Window.Start.Format("Monday Jan 02, 2006 at 3:04 PM"))
		}
		if ev.Location != nil {
			fmt.Printf("  Where: %s\n", ev.Location.Name)
		}
	} else {
		color.New(color.FgYellow).Println("Still negotiating. Check back with: yotei-agent events")
	}
	return nil
}

func runEvents(ctx context.Context) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	events, err := st.ListEventsByParticipant(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events yet. Use: yotei-agent plan TITLE")
		return nil
	}

	fmt.Println()
	for _, ev := range events {
		sum := ev.Summarize()
		status := sum.Status
		switch ev.Status {
		case model.StatusConfirmed:
			status = color.GreenString(status)
		case model.StatusCancelled:
			status = color.RedString(status)
		default:
			status = color.YellowString(status)
		}
		fmt.Printf("  %s  %-24s %s  %s  %s  (%s)\n",
			sum.ID, sum.Title, status, sum.Date, sum.Location, strings.Join(sum.Participants, ", "))
	}
	fmt.Println()
	return nil
}

func runNudge(ctx context.Context) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: yotei-agent nudge NAME TOPIC")
	}
	name := os.Args[2]
	topic := strings.Join(os.Args[3:], " ")

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}
	friends, err := st.ListFriends(ctx, user.ID)
	if err != nil {
		return err
	}
	var friend *model.FriendRelationship
	for _, f := range friends {
		if strings.EqualFold(f.FriendName, name) {
			friend = f
			break
		}
	}
	if friend == nil {
		return fmt.Errorf("no friend named %q", name)
	}

	logger := slog.Default()
	eng := agent.NewEngine(st, newIntel(cfg, logger), &agent.HeuristicOracle{}, logger)
	msg, err := eng.Nudge(ctx, user.ID, friend.FriendID, topic)
	if err != nil {
		return err
	}

	// Best effort delivery; the message is shown either way.
	m := messenger.New(user.AgentID, logger)
	if err := m.Connect(ctx, cfg.Relay.URL, user.Name); err == nil {
		defer m.Close(ctx)
		if err := m.SendNudge(ctx, "AGENT-"+friend.FriendID, "", topic, msg); err != nil {
			color.New(color.FgYellow).Println("(could not deliver through the relay)")
		}
	} else {
		color.New(color.FgYellow).Println("(relay unreachable, message not delivered)")
	}

	fmt.Printf("\n%s\n\n", color.CyanString(msg))
	return nil
}

// runDaemon connects to the relay and serves coordination requests from
// peer agents until interrupted.
func runDaemon(ctx context.Context) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := currentUser(ctx, st)
	if err != nil {
		return err
	}

	logger := slog.Default().With("agent_id", user.AgentID)
	intel := newIntel(cfg, logger)

	logger.Info("starting yotei-agent", "user", user.Name, "relay_url", cfg.Relay.URL)

	for {
		err := runSession(ctx, cfg, st, user, intel, logger)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn("relay session ended", "error", err)
		}
		select {
		case <-time.After(cfg.Relay.ReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// runSession runs one relay connection until it drops or ctx is cancelled.
func runSession(ctx context.Context, cfg *config.Config, st store.Store, user *model.User, intel social.Intel, logger *slog.Logger) error {
	m := messenger.New(user.AgentID, logger)
	eng := agent.NewEngine(st, intel, &agent.RelayOracle{
		Messenger:      m,
		PerPeerTimeout: cfg.Agents.ResponseTimeout,
	}, logger)

	h := &daemonHandlers{store: st, engine: eng, user: user, logger: logger}
	m.Handle(relay.TypeAvailabilityQuery, h.onAvailabilityQuery)
	m.Handle(relay.TypeProposal, h.onProposal)
	m.Handle(relay.TypeNudge, h.onNudge)
	m.Handle(relay.TypeVibeCheck, h.onVibeCheck)
	m.Handle(relay.TypeEventUpdate, h.onEventUpdate)
	m.Handle(relay.TypeEventCancelled, h.onEventCancelled)

	if err := m.Connect(ctx, cfg.Relay.URL, user.Name); err != nil {
		return err
	}
	defer m.Close(context.WithoutCancel(ctx))

	heartbeat := time.NewTicker(cfg.Relay.HeartbeatInterval)
	defer heartbeat.Stop()
	coordinate := time.NewTicker(cfg.Agents.PollInterval)
	defer coordinate.Stop()

	for {
		select {
		case <-heartbeat.C:
			if err := m.Ping(ctx); err != nil {
				return err
			}
		case <-coordinate.C:
			if err := eng.CoordinatePending(ctx, user.ID); err != nil {
				logger.Warn("coordination pass failed", "error", err)
			}
		case <-m.Done():
			return errors.New("connection closed")
		case <-ctx.Done():
			return nil
		}
	}
}

// daemonHandlers answers peer agents on behalf of the local user.
type daemonHandlers struct {
	store  store.Store
	engine *agent.Engine
	user   *model.User
	logger *slog.Logger
}

func (h *daemonHandlers) onAvailabilityQuery(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	var q relay.AvailabilityQueryPayload
	if err := msg.DecodePayload(&q); err != nil {
		return nil, err
	}
	start, err := time.Parse("2006-01-02", q.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", q.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing end_date: %w", err)
	}

	sched, err := h.store.GetSchedule(ctx, h.user.ID)
	if err != nil {
		sched = agent.DefaultSchedule(h.user.ID)
	}

	var slots []model.SlotDescriptor
	for _, daySlots := range sched.AvailabilityRange(start, end) {
		for _, s := range daySlots {
			slots = append(slots, s.Descriptor())
		}
	}

	return relay.NewAvailabilityResponse(h.user.AgentID, msg.Sender, msg.EventID, msg.ID,
		relay.AvailabilityResponsePayload{AvailableSlots: slots}), nil
}

func (h *daemonHandlers) onProposal(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	var pp relay.ProposalPayload
	if err := msg.DecodePayload(&pp); err != nil {
		return nil, err
	}

	p := &model.Proposal{
		ID:               pp.ProposalID,
		ProposerAgentID:  msg.Sender,
		Window:           &model.TimeSlot{Start: pp.Start, End: pp.End},
		Location:         pp.Location,
		Activity:         pp.Activity,
		EstCostPerPerson: pp.EstCostPerPerson,
		Reasoning:        pp.Reasoning,
		Responses:        make(map[string]model.Decision),
	}

	ev, err := h.store.GetEvent(ctx, msg.EventID)
	if errors.Is(err, store.ErrNotFound) {
		// First contact for this event; track it locally from here on.
		ev = model.NewEvent(h.user.ID, pp.Activity, model.EventHangout)
		ev.ID = msg.EventID
		ev.AddParticipant(h.user.ID, h.user.Name, h.user.AgentID)
	} else if err != nil {
		return nil, err
	}

	eval, err := h.engine.EvaluateIncoming(ctx, h.user.ID, ev, p)
	if err != nil {
		return nil, err
	}
	if err := h.store.SaveEvent(ctx, ev); err != nil {
		h.logger.Warn("saving event after evaluation", "event_id", ev.ID, "error", err)
	}

	return relay.NewProposalResponse(h.user.AgentID, msg.Sender, msg.EventID, msg.ID,
		relay.ProposalResponsePayload{
			Decision:               eval.Decision,
			EnthusiasmLevel:        eval.EnthusiasmLevel,
			ModificationsRequested: eval.ModificationsRequested,
			Reasoning:              eval.Reasoning,
		}), nil
}

func (h *daemonHandlers) onNudge(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	var n relay.NudgePayload
	if err := msg.DecodePayload(&n); err != nil {
		return nil, err
	}
	h.logger.Info("nudge received", "from", msg.Sender, "topic", n.Topic)
	return relay.NewNudgeAck(h.user.AgentID, msg.Sender, msg.ID), nil
}

func (h *daemonHandlers) onVibeCheck(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	enthusiasm := 3
	var concerns []string
	if ev, err := h.store.GetEvent(ctx, msg.EventID); err == nil {
		if self := ev.Participant(h.user.AgentID); self != nil && self.EnthusiasmLevel > 0 {
			enthusiasm = self.EnthusiasmLevel
		}
		if ev.Window != nil && !h.user.IsAvailable(ev.Window.Start) {
			concerns = append(concerns, "the confirmed time no longer fits the calendar")
		}
	}
	return relay.NewVibeResponse(h.user.AgentID, msg.Sender, msg.EventID, msg.ID, enthusiasm, concerns), nil
}

func (h *daemonHandlers) onEventUpdate(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	var u relay.EventUpdatePayload
	if err := msg.DecodePayload(&u); err != nil {
		return nil, err
	}
	h.logger.Info("event update", "event_id", msg.EventID, "status", u.Status)
	return nil, nil
}

func (h *daemonHandlers) onEventCancelled(ctx context.Context, msg *relay.Message) (*relay.Message, error) {
	ev, err := h.store.GetEvent(ctx, msg.EventID)
	if err != nil {
		return nil, nil
	}
	ev.Cancel()
	if err := h.store.SaveEvent(ctx, ev); err != nil {
		h.logger.Warn("saving cancelled event", "event_id", ev.ID, "error", err)
	}
	h.logger.Info("event cancelled by peer", "event_id", msg.EventID, "by", msg.Sender)
	return nil, nil
}
