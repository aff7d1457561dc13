package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// TicketsHandler exposes read-only ticket endpoints for operators. All
// mutation goes through the chat surface; the ops API only inspects.
type TicketsHandler struct {
	service *service.TicketService
	metrics *observability.Metrics
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, metrics *observability.Metrics) *TicketsHandler {
	return &TicketsHandler{service: ticketService, metrics: metrics}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.Repository().GetAll(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}

	statusFilter := strings.ToLower(c.Query("status"))
	ownerFilter := c.Query("owner")

	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		ticket := &tickets[i]
		if statusFilter != "" && strings.ToLower(ticket.StatusID) != statusFilter {
			continue
		}
		if ownerFilter != "" && ticket.OwnerID != ownerFilter {
			continue
		}
		items = append(items, ticketSummary(ticket))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:number.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.findTicket(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// GetTranscript GET /tickets/:number/transcript.
func (h *TicketsHandler) GetTranscript(c *fiber.Ctx) error {
	ticket, err := h.findTicket(c)
	if err != nil {
		return err
	}
	transcript := service.GenerateTranscript(ticket, h.service.Validator())
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(transcript)
}

// Metrics GET /metrics.
func (h *TicketsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func (h *TicketsHandler) findTicket(c *fiber.Ctx) (*domain.Ticket, error) {
	raw := strings.TrimPrefix(c.Params("number"), "#")
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		return nil, apperrors.NewValidationError("invalid ticket number", nil)
	}
	ticket, err := h.service.Repository().FindByNumber(c.UserContext(), number)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		TicketNumber: ticket.TicketNumber,
		FormattedID:  ticket.FormattedID(),
		OwnerID:      ticket.OwnerID,
		CategoryID:   ticket.CategoryID,
		StatusID:     ticket.StatusID,
		ClaimedByID:  ticket.ClaimedByID,
		ThreadID:     ticket.ThreadID,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		ClosedAt:     ticket.ClosedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	messages := make([]dto.MessageResponse, 0, len(ticket.Messages))
	for _, message := range ticket.Messages {
		messages = append(messages, dto.MessageResponse{
			MessageID:      message.MessageID,
			AuthorID:       message.AuthorID,
			AuthorName:     message.AuthorName,
			Content:        message.Content,
			AttachmentURLs: message.AttachmentURLs,
			Timestamp:      message.Timestamp,
			Staff:          message.Staff,
		})
	}
	fields := make([]dto.FieldResponse, 0, len(ticket.CustomFields))
	for _, field := range ticket.CustomFields {
		fields = append(fields, dto.FieldResponse{
			FieldID: field.FieldID,
			Label:   field.Label,
			Value:   field.Value,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		ClosedByID:    ticket.ClosedByID,
		CloseReason:   ticket.CloseReason,
		CustomFields:  fields,
		Messages:      messages,
	}
}
