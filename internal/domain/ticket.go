package domain

import (
	"fmt"
	"time"
)

// ClosedAtOpen is the sentinel stored in Ticket.ClosedAt while a ticket
// remains open.
const ClosedAtOpen = -1

// Ticket is the aggregate for one support request. It is tied to exactly
// one owner and one messaging-surface thread and embeds its full message
// history. Timestamps are epoch milliseconds.
type Ticket struct {
	TicketNumber   int             `json:"ticketNumber"`
	OwnerID        string          `json:"ownerId"`
	CategoryID     string          `json:"categoryId"`
	StatusID       string          `json:"statusId"`
	ClaimedByID    string          `json:"claimedById,omitempty"`
	ThreadID       string          `json:"threadId"`
	ForumChannelID string          `json:"forumChannelId"`
	CreatedAt      int64           `json:"createdAt"`
	UpdatedAt      int64           `json:"updatedAt"`
	ClosedAt       int64           `json:"closedAt"`
	ClosedByID     string          `json:"closedById,omitempty"`
	CloseReason    string          `json:"closeReason,omitempty"`
	Messages       []TicketMessage `json:"messages"`
	CustomFields   []FieldValue    `json:"customFields,omitempty"`

	// Reminder bookkeeping: LastReminderThresholdHours is the highest
	// threshold already sent while the ticket has been continuously open.
	LastReminderSent           int64 `json:"lastReminderSent"`
	LastReminderThresholdHours int   `json:"lastReminderThresholdHours"`
}

// NewTicket builds an open ticket with the given identity.
func NewTicket(ticketNumber int, ownerID string) *Ticket {
	now := time.Now().UnixMilli()
	return &Ticket{
		TicketNumber: ticketNumber,
		OwnerID:      ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
		ClosedAt:     ClosedAtOpen,
		Messages:     []TicketMessage{},
	}
}

// FormattedID returns the human-facing ticket id, e.g. "#0042".
func (t *Ticket) FormattedID() string {
	return fmt.Sprintf("#%04d", t.TicketNumber)
}

// AddMessage appends to the message log and bumps UpdatedAt. The log is
// append-only; insertion order is chronological order.
func (t *Ticket) AddMessage(msg TicketMessage) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now().UnixMilli()
}

// IsClosed reports whether the ticket has been closed.
func (t *Ticket) IsClosed() bool {
	return t.ClosedAt > 0
}

// IsClaimed reports whether a staff member has claimed the ticket.
func (t *Ticket) IsClaimed() bool {
	return t.ClaimedByID != ""
}

// ResetReminderTracking clears the reminder watermark. Called on any
// status-changing or claim event: a response resets the clock.
func (t *Ticket) ResetReminderTracking() {
	t.LastReminderSent = 0
	t.LastReminderThresholdHours = 0
}

// AddCustomField records a submitted field value, replacing any earlier
// value for the same field id while preserving insertion order.
func (t *Ticket) AddCustomField(fieldID, label, value string) {
	for i := range t.CustomFields {
		if t.CustomFields[i].FieldID == fieldID {
			t.CustomFields[i].Label = label
			t.CustomFields[i].Value = value
			return
		}
	}
	t.CustomFields = append(t.CustomFields, FieldValue{FieldID: fieldID, Label: label, Value: value})
}
