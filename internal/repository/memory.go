package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// MemoryTicketRepository is an in-memory TicketRepository used in tests
// and for running the engine without a database. Ticket numbers come
// from an atomic counter.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	byNum   map[int]*domain.Ticket
	counter atomic.Int64
}

// NewMemoryTicketRepository creates an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{byNum: make(map[int]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := cloneTicket(ticket)
	r.byNum[ticket.TicketNumber] = clone
	return nil
}

func (r *MemoryTicketRepository) FindByThreadID(ctx context.Context, threadID string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ticket := range r.byNum {
		if ticket.ThreadID == threadID {
			return cloneTicket(ticket), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryTicketRepository) FindByNumber(ctx context.Context, ticketNumber int) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.byNum[ticketNumber]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(ticket), nil
}

func (r *MemoryTicketRepository) FindOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	closed := make(map[string]struct{}, len(closedStatusIDs))
	for _, id := range closedStatusIDs {
		closed[id] = struct{}{}
	}
	var result []domain.Ticket
	for _, ticket := range r.byNum {
		if ticket.OwnerID != userID {
			continue
		}
		if _, isClosed := closed[ticket.StatusID]; isClosed {
			continue
		}
		result = append(result, *cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TicketNumber < result[j].TicketNumber })
	return result, nil
}

func (r *MemoryTicketRepository) CountOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) (int, error) {
	tickets, err := r.FindOpenTicketsByUser(ctx, userID, closedStatusIDs)
	if err != nil {
		return 0, err
	}
	return len(tickets), nil
}

func (r *MemoryTicketRepository) NextTicketNumber(ctx context.Context) (int, error) {
	return int(r.counter.Add(1)), nil
}

func (r *MemoryTicketRepository) GetAll(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Ticket, 0, len(r.byNum))
	for _, ticket := range r.byNum {
		result = append(result, *cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TicketNumber < result[j].TicketNumber })
	return result, nil
}

func (r *MemoryTicketRepository) DeleteByNumber(ctx context.Context, ticketNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byNum, ticketNumber)
	return nil
}

func cloneTicket(ticket *domain.Ticket) *domain.Ticket {
	clone := *ticket
	clone.Messages = append([]domain.TicketMessage(nil), ticket.Messages...)
	clone.CustomFields = append([]domain.FieldValue(nil), ticket.CustomFields...)
	return &clone
}
