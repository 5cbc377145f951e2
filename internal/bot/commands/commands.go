package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/tracker"
)

// Handlers process Discord interactions.
type Handlers struct {
	mgr    *tracker.Manager
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(mgr *tracker.Manager, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		mgr:    mgr,
		logger: logger,
		tracer: tp.Tracer("github.com/72rs3/Gamble-5k-board-tracker/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "add-player",
			Description: "Add a player to the board",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Player name (must be unique)",
					Required:    true,
				},
			},
		},
		{
			Name:        "play",
			Description: "Mark a player as having played their turn",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Player name",
					Required:    true,
				},
			},
		},
		{
			Name:        "override",
			Description: "Manually set a player's status",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Player name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "status",
					Description: "New status",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Eligible", Value: string(roster.StatusEligible)},
						{Name: "Not eligible", Value: string(roster.StatusNotEligible)},
						{Name: "Inactive", Value: string(roster.StatusInactive)},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "expires",
					Description: "Eligibility expiry, e.g. 2024-05-10 18:00 (UTC)",
					Required:    false,
				},
			},
		},
		{
			Name:        "board",
			Description: "Show every player and their status",
		},
		{
			Name:        "alerts",
			Description: "Show players whose eligibility expires within 24 hours",
		},
		{
			Name:        "history",
			Description: "Show the most recent board actions",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "Number of entries to show (default: 10)",
					Required:    false,
				},
			},
		},
		{
			Name:        "export",
			Description: "Export the board as a shareable snapshot token",
		},
		{
			Name:        "cleanup-inactive",
			Description: "Remove all inactive players from the board",
		},
		{
			Name:        "reset-all",
			Description: "Delete every player and the entire history",
		},
	}
}

// InteractionCreate dispatches slash commands and the confirm/cancel
// buttons of staged actions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	}
}

func (h *Handlers) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", i.ApplicationCommandData().Name)),
	)
	defer span.End()

	switch i.ApplicationCommandData().Name {
	case "add-player":
		h.handleAddPlayer(ctx, s, i)
	case "play":
		h.handlePlay(ctx, s, i)
	case "override":
		h.handleOverride(ctx, s, i)
	case "board":
		h.handleBoard(ctx, s, i)
	case "alerts":
		h.handleAlerts(ctx, s, i)
	case "history":
		h.handleHistory(ctx, s, i)
	case "export":
		h.handleExport(ctx, s, i)
	case "cleanup-inactive":
		h.handleCleanupInactive(ctx, s, i)
	case "reset-all":
		h.handleResetAll(ctx, s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	ctx, span := h.tracer.Start(context.Background(), "InteractionComponent",
		trace.WithAttributes(attribute.String("custom_id", customID)),
	)
	defer span.End()

	verb, pendingID, ok := strings.Cut(customID, ":")
	if !ok {
		update(s, i, "Unknown action.")
		return
	}

	switch verb {
	case "confirm":
		result, err := h.mgr.Confirm(ctx, pendingID)
		if err != nil {
			update(s, i, fmt.Sprintf("Could not confirm: %s", err))
			return
		}
		update(s, i, result)
	case "cancel":
		if err := h.mgr.Cancel(ctx, pendingID); err != nil {
			update(s, i, fmt.Sprintf("Could not cancel: %s", err))
			return
		}
		update(s, i, "Cancelled. Nothing was changed.")
	default:
		update(s, i, "Unknown action.")
	}
}

func (h *Handlers) handleAddPlayer(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Options[0].StringValue()

	p, err := h.mgr.AddPlayer(ctx, name)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to add player: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("**%s** joined the board as %s.", p.Name, p.Status.Label()))
}

func (h *Handlers) handlePlay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Options[0].StringValue()

	p, err := h.mgr.PlayerByName(ctx, name)
	if err != nil {
		respond(s, i, fmt.Sprintf("No player named **%s**.", name))
		return
	}

	action, err := h.mgr.StageMarkPlayed(ctx, p.ID)
	if err != nil {
		respond(s, i, fmt.Sprintf("Cannot mark as played: %s", err))
		return
	}
	respondConfirm(s, i, action)
}

func (h *Handlers) handleOverride(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	name := opts[0].StringValue()

	status, err := roster.ParseStatus(opts[1].StringValue())
	if err != nil {
		respond(s, i, fmt.Sprintf("Invalid status: %s", err))
		return
	}

	var expiry *time.Time
	for _, opt := range opts[2:] {
		if opt.Name != "expires" {
			continue
		}
		t, err := parseExpiry(opt.StringValue())
		if err != nil {
			respond(s, i, fmt.Sprintf("Invalid expiry: %s", err))
			return
		}
		expiry = &t
	}

	p, err := h.mgr.PlayerByName(ctx, name)
	if err != nil {
		respond(s, i, fmt.Sprintf("No player named **%s**.", name))
		return
	}

	action, err := h.mgr.StageOverride(ctx, p.ID, status, expiry)
	if err != nil {
		respond(s, i, fmt.Sprintf("Cannot override: %s", err))
		return
	}
	respondConfirm(s, i, action)
}

func (h *Handlers) handleBoard(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	players := h.mgr.Players(ctx)
	if len(players) == 0 {
		respond(s, i, "The board is empty. Use `/add-player` to get started.")
		return
	}

	var b strings.Builder
	b.WriteString("**Board:**\n")
	for _, p := range players {
		b.WriteString(fmt.Sprintf("%s **%s** — %s", statusEmoji(p.Status), p.Name, p.Status.Label()))
		if p.Status == roster.StatusEligible && p.EligibilityExpiresAt != nil {
			b.WriteString(fmt.Sprintf(" (until %s)", p.EligibilityExpiresAt.UTC().Format("Jan 2 15:04 MST")))
		}
		b.WriteString("\n")
	}
	respond(s, i, b.String())
}

func (h *Handlers) handleAlerts(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	alerts := h.mgr.Alerts(ctx)
	if len(alerts) == 0 {
		respond(s, i, "No eligibility expiring in the next 24 hours.")
		return
	}

	var b strings.Builder
	b.WriteString("**Expiring soon:**\n")
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf(":hourglass: %s\n", a.Message))
	}
	respond(s, i, b.String())
}

func (h *Handlers) handleHistory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	count := 10
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "count" {
			count = int(opt.IntValue())
		}
	}

	entries := h.mgr.History(ctx, count)
	if len(entries) == 0 {
		respond(s, i, "No history yet.")
		return
	}

	var b strings.Builder
	b.WriteString("**History (newest first):**\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("`%s` **%s** %s\n",
			e.Timestamp.UTC().Format("Jan 2 15:04"), e.PlayerName, e.Action))
	}
	respond(s, i, b.String())
}

func (h *Handlers) handleExport(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	token, err := h.mgr.ExportToken(ctx)
	if err != nil {
		respond(s, i, fmt.Sprintf("Export failed: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("Snapshot token (set it as the import token to restore):\n```%s```", token))
}

func (h *Handlers) handleCleanupInactive(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, err := h.mgr.StageCleanupInactive(ctx)
	if err != nil {
		respond(s, i, fmt.Sprintf("Cannot stage cleanup: %s", err))
		return
	}
	respondConfirm(s, i, action)
}

func (h *Handlers) handleResetAll(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	action, err := h.mgr.StageResetAll(ctx)
	if err != nil {
		respond(s, i, fmt.Sprintf("Cannot stage reset: %s", err))
		return
	}
	respondConfirm(s, i, action)
}

func statusEmoji(s roster.Status) string {
	switch s {
	case roster.StatusEligible:
		return ":green_circle:"
	case roster.StatusNotEligible:
		return ":yellow_circle:"
	case roster.StatusInactive:
		return ":black_circle:"
	}
	return ":white_circle:"
}

// parseExpiry accepts RFC 3339 or "2006-01-02 15:04" (assumed UTC).
func parseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD HH:MM, got %q", s)
	}
	return t.UTC(), nil
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}

// respondConfirm posts the staged action's prompt with confirm and
// cancel buttons. The buttons carry the pending action id.
func respondConfirm(s *discordgo.Session, i *discordgo.InteractionCreate, action *tracker.PendingAction) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: action.Describe(),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Confirm",
							Style:    discordgo.DangerButton,
							CustomID: "confirm:" + action.ID,
						},
						discordgo.Button{
							Label:    "Cancel",
							Style:    discordgo.SecondaryButton,
							CustomID: "cancel:" + action.ID,
						},
					},
				},
			},
		},
	})
}

// update rewrites the confirmation message in place, dropping its buttons.
func update(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    msg,
			Components: []discordgo.MessageComponent{},
		},
	})
}
