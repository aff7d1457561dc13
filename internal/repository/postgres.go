package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// postgresTicketRepository stores each ticket as a row with its message
// log and custom fields in JSONB columns. Ticket numbers come from a
// dedicated sequence so concurrent creations never collide.
type postgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository instantiates the repository.
func NewPostgresTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &postgresTicketRepository{pool: pool}
}

func (r *postgresTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	messages, err := json.Marshal(ticket.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	customFields, err := json.Marshal(ticket.CustomFields)
	if err != nil {
		return fmt.Errorf("marshal custom fields: %w", err)
	}

	const query = `
        INSERT INTO tickets (
            ticket_number, owner_id, category_id, status_id, claimed_by_id,
            thread_id, forum_channel_id, created_at, updated_at, closed_at,
            closed_by_id, close_reason, messages, custom_fields,
            last_reminder_sent, last_reminder_threshold_hours)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (ticket_number) DO UPDATE SET
            category_id=EXCLUDED.category_id,
            status_id=EXCLUDED.status_id,
            claimed_by_id=EXCLUDED.claimed_by_id,
            updated_at=EXCLUDED.updated_at,
            closed_at=EXCLUDED.closed_at,
            closed_by_id=EXCLUDED.closed_by_id,
            close_reason=EXCLUDED.close_reason,
            messages=EXCLUDED.messages,
            custom_fields=EXCLUDED.custom_fields,
            last_reminder_sent=EXCLUDED.last_reminder_sent,
            last_reminder_threshold_hours=EXCLUDED.last_reminder_threshold_hours`
	_, err = r.pool.Exec(ctx, query,
		ticket.TicketNumber,
		ticket.OwnerID,
		ticket.CategoryID,
		ticket.StatusID,
		ticket.ClaimedByID,
		ticket.ThreadID,
		ticket.ForumChannelID,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ClosedByID,
		ticket.CloseReason,
		messages,
		customFields,
		ticket.LastReminderSent,
		ticket.LastReminderThresholdHours,
	)
	return err
}

const ticketColumns = `
        ticket_number, owner_id, category_id, status_id, claimed_by_id,
        thread_id, forum_channel_id, created_at, updated_at, closed_at,
        closed_by_id, close_reason, messages, custom_fields,
        last_reminder_sent, last_reminder_threshold_hours`

func (r *postgresTicketRepository) FindByThreadID(ctx context.Context, threadID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE thread_id=$1`
	return r.fetchSingle(ctx, query, threadID)
}

func (r *postgresTicketRepository) FindByNumber(ctx context.Context, ticketNumber int) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, ticketNumber)
}

func (r *postgresTicketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanTicket(row)
}

func (r *postgresTicketRepository) FindOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE owner_id=$1 AND NOT (status_id = ANY($2))
        ORDER BY ticket_number`
	rows, err := r.pool.Query(ctx, query, userID, closedStatusIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *postgresTicketRepository) CountOpenTicketsByUser(ctx context.Context, userID string, closedStatusIDs []string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE owner_id=$1 AND NOT (status_id = ANY($2))`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, closedStatusIDs).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresTicketRepository) NextTicketNumber(ctx context.Context) (int, error) {
	var number int
	if err := r.pool.QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

func (r *postgresTicketRepository) GetAll(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY ticket_number`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *postgresTicketRepository) DeleteByNumber(ctx context.Context, ticketNumber int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE ticket_number=$1`, ticketNumber)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket       domain.Ticket
		messages     []byte
		customFields []byte
	)
	if err := row.Scan(
		&ticket.TicketNumber,
		&ticket.OwnerID,
		&ticket.CategoryID,
		&ticket.StatusID,
		&ticket.ClaimedByID,
		&ticket.ThreadID,
		&ticket.ForumChannelID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ClosedByID,
		&ticket.CloseReason,
		&messages,
		&customFields,
		&ticket.LastReminderSent,
		&ticket.LastReminderThresholdHours,
	); err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &ticket.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &ticket.CustomFields); err != nil {
			return nil, fmt.Errorf("unmarshal custom fields: %w", err)
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
