package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/surface"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// Component ids used on DM prompts. Adapters route interaction
// callbacks back to the matching handler by these ids.
const (
	MenuTicketSelect   = "ticket_select"
	MenuCategorySelect = "category_select"
	ButtonNewTicket    = "new_ticket"
)

// Manager drives the DM conversation flow: ticket selection, category
// selection, description entry, and reply routing. It owns the session
// store and implements the session teardown hook the ticket service
// calls on close.
type Manager struct {
	store   *Store
	tickets *service.TicketService
	surf    surface.Surface
	rules   *config.TicketRules
	logger  *zap.Logger
}

// NewManager wires the conversation manager.
func NewManager(store *Store, tickets *service.TicketService, surf surface.Surface, rules *config.TicketRules, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		tickets: tickets,
		surf:    surf,
		rules:   rules,
		logger:  logger,
	}
}

// Clear drops the user's conversation state.
func (m *Manager) Clear(userID string) {
	m.store.Clear(userID)
}

// HandleDM processes a plain DM according to the user's current step.
func (m *Manager) HandleDM(ctx context.Context, user surface.User, content string, attachments []surface.Attachment) error {
	state := m.store.Get(user.ID)

	switch state.Step {
	case domain.StepReplyingToTicket:
		return m.handleReply(ctx, user, state, content, attachments)
	case domain.StepSelectingCategory:
		// A typed message while a category menu is pending: re-prompt.
		return m.promptCategorySelection(ctx, user)
	case domain.StepEnteringDescription:
		return m.handleDescription(ctx, user, state, content)
	case domain.StepInitial:
		return m.ShowTicketMenu(ctx, user)
	default:
		m.store.Clear(user.ID)
		return m.surf.SendDM(ctx, user.ID, "I lost track of our conversation. Message me again to start over.")
	}
}

// handleReply forwards the DM into the selected ticket's thread. When
// the ticket meanwhile closed or vanished, the stale state is dropped
// and the DM is re-dispatched from the initial step.
func (m *Manager) handleReply(ctx context.Context, user surface.User, state domain.ConversationState, content string, attachments []surface.Attachment) error {
	ticket, err := m.tickets.FindByThreadID(ctx, state.ReplyToThreadID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if ticket == nil || err != nil || ticket.IsClosed() || m.tickets.Validator().IsClosedStatus(ticket.StatusID) {
		m.store.Clear(user.ID)
		if sendErr := m.surf.SendDM(ctx, user.ID, "The ticket you were replying to has been closed."); sendErr != nil {
			m.logger.Warn("failed to notify about closed reply target", zap.String("user", user.ID), zap.Error(sendErr))
		}
		return m.HandleDM(ctx, user, content, attachments)
	}

	if err := m.tickets.HandleUserReply(ctx, user, state.ReplyToThreadID, content, attachments); err != nil {
		return err
	}
	// Refresh the idle deadline so an active conversation stays open.
	m.store.Put(state)
	return nil
}

func (m *Manager) handleDescription(ctx context.Context, user surface.User, state domain.ConversationState, content string) error {
	ticket, err := m.tickets.CreateTicket(ctx, user, state.SelectedCategory, content, nil)
	if err != nil {
		m.store.Clear(user.ID)
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			if sendErr := m.surf.SendDM(ctx, user.ID, domainErr.Message); sendErr != nil {
				m.logger.Warn("failed to deliver error message", zap.String("user", user.ID), zap.Error(sendErr))
			}
			return nil
		}
		if sendErr := m.surf.SendDM(ctx, user.ID, "Something went wrong creating your ticket. Please try again."); sendErr != nil {
			m.logger.Warn("failed to deliver error message", zap.String("user", user.ID), zap.Error(sendErr))
		}
		return err
	}

	// The conversation continues against the new ticket: further DMs are
	// forwarded as replies until the ticket closes or the session expires.
	m.store.Put(domain.ConversationState{
		UserID:          user.ID,
		Step:            domain.StepReplyingToTicket,
		ReplyToThreadID: ticket.ThreadID,
	})
	confirmation := fmt.Sprintf("Your ticket **%s** has been created. Our team will get back to you soon.\n\nAnything else you send here will be added to the ticket.",
		ticket.FormattedID())
	return m.surf.SendDM(ctx, user.ID, confirmation)
}

// ShowTicketMenu presents the user's open tickets for selection, or
// starts the new-ticket flow when there are none.
func (m *Manager) ShowTicketMenu(ctx context.Context, user surface.User) error {
	open, err := m.tickets.FindOpenTicketsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return m.StartNewTicketFlow(ctx, user)
	}

	options := make([]surface.MenuOption, 0, len(open))
	for i := range open {
		ticket := &open[i]
		options = append(options, surface.MenuOption{
			Label:       ticket.FormattedID() + " - " + m.tickets.Validator().CategoryDisplayName(ticket.CategoryID),
			Value:       ticket.ThreadID,
			Description: m.tickets.Validator().StatusDisplayName(ticket.StatusID),
		})
	}

	prompt := surface.Prompt{
		Text:            "You have open tickets. Reply to one of them, or open a new ticket.",
		MenuID:          MenuTicketSelect,
		MenuPlaceholder: "Select a ticket to reply to",
		MenuOptions:     options,
		Buttons:         []surface.Button{{ID: ButtonNewTicket, Label: "Open New Ticket"}},
	}
	return m.surf.SendDMPrompt(ctx, user.ID, prompt)
}

// StartNewTicketFlow prompts for a category and advances the session.
func (m *Manager) StartNewTicketFlow(ctx context.Context, user surface.User) error {
	if m.rules.IsUserBlacklisted(user.ID) {
		return m.surf.SendDM(ctx, user.ID, m.rules.BlacklistMessage)
	}
	if err := m.promptCategorySelection(ctx, user); err != nil {
		return err
	}
	m.store.Put(domain.ConversationState{UserID: user.ID, Step: domain.StepSelectingCategory})
	return nil
}

func (m *Manager) promptCategorySelection(ctx context.Context, user surface.User) error {
	options := make([]surface.MenuOption, 0, len(m.rules.Categories))
	for _, category := range m.rules.Categories {
		options = append(options, surface.MenuOption{
			Label:       category.DisplayName,
			Value:       category.ID,
			Description: category.Description,
		})
	}
	prompt := surface.Prompt{
		Text:            "What can we help you with? Pick a category to get started.",
		MenuID:          MenuCategorySelect,
		MenuPlaceholder: "Select a category",
		MenuOptions:     options,
	}
	return m.surf.SendDMPrompt(ctx, user.ID, prompt)
}

// HandleCategorySelection records the chosen category and asks for the
// problem description.
func (m *Manager) HandleCategorySelection(ctx context.Context, user surface.User, categoryID string) error {
	category, ok := m.tickets.Validator().CategoryByID(categoryID)
	if !ok {
		m.store.Clear(user.ID)
		return m.surf.SendDM(ctx, user.ID, "That category is no longer available. Message me again to restart.")
	}

	m.store.Put(domain.ConversationState{
		UserID:           user.ID,
		Step:             domain.StepEnteringDescription,
		SelectedCategory: category.ID,
	})

	prompt := fmt.Sprintf("**%s** it is. Please describe your issue in one message (%d-%d characters).",
		category.DisplayName, m.rules.MinDescriptionLength, m.rules.MaxDescriptionLength)
	return m.surf.SendDM(ctx, user.ID, prompt)
}

// HandleTicketSelection puts the user into reply mode for the chosen
// ticket thread.
func (m *Manager) HandleTicketSelection(ctx context.Context, user surface.User, threadID string) error {
	ticket, err := m.tickets.FindByThreadID(ctx, threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			m.store.Clear(user.ID)
			return m.surf.SendDM(ctx, user.ID, "That ticket no longer exists. Message me again to restart.")
		}
		return err
	}
	if ticket.OwnerID != user.ID {
		return nil
	}
	if ticket.IsClosed() || m.tickets.Validator().IsClosedStatus(ticket.StatusID) {
		m.store.Clear(user.ID)
		return m.surf.SendDM(ctx, user.ID, "That ticket has been closed. Message me again to open a new one.")
	}

	m.store.Put(domain.ConversationState{
		UserID:          user.ID,
		Step:            domain.StepReplyingToTicket,
		ReplyToThreadID: threadID,
	})

	message := fmt.Sprintf("You are now replying to ticket **%s**. Everything you send here will be forwarded to the support team.",
		ticket.FormattedID())
	return m.surf.SendDM(ctx, user.ID, message)
}

// HandleButton routes a button press from a DM prompt.
func (m *Manager) HandleButton(ctx context.Context, user surface.User, buttonID string) error {
	switch strings.ToLower(buttonID) {
	case ButtonNewTicket:
		return m.StartNewTicketFlow(ctx, user)
	default:
		m.logger.Warn("unknown button pressed", zap.String("button", buttonID), zap.String("user", user.ID))
		return nil
	}
}
