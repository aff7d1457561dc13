package repository

import (
	"context"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// TicketRepository encapsulates ticket persistence. A ticket is stored
// as one document keyed by its thread id; Save is a whole-document
// upsert.
type TicketRepository interface {
	Save(ctx context.Context, ticket *domain.Ticket) error
	FindByThreadID(ctx context.Context, threadID string) (*domain.Ticket, error)
	FindByNumber(ctx context.Context, ticketNumber int) (*domain.Ticket, error)
	FindOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) ([]domain.Ticket, error)
	CountOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) (int, error)
	// NextTicketNumber atomically allocates the next ticket number.
	NextTicketNumber(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]domain.Ticket, error)
	DeleteByNumber(ctx context.Context, ticketNumber int) error
}
