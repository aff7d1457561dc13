package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClaimed       EventType = "ticket_claimed"
	EventTicketTransferred   EventType = "ticket_transferred"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketReopened      EventType = "ticket_reopened"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventReminderSent        EventType = "ticket_reminder_sent"
)

// Event represents a domain event emitted by the orchestrator.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketNumber int         `json:"ticket_number"`
	ActorID      string      `json:"actor_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OwnerID    string `json:"owner_id"`
	CategoryID string `json:"category_id"`
	ThreadID   string `json:"thread_id"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatusID string `json:"old_status_id"`
	NewStatusID string `json:"new_status_id"`
}

// ClaimPayload payload for claim and transfer events.
type ClaimPayload struct {
	PreviousClaimantID string `json:"previous_claimant_id,omitempty"`
	ClaimantID         string `json:"claimant_id"`
}

// ClosePayload payload for close and reopen events.
type ClosePayload struct {
	Reason string `json:"reason,omitempty"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	AuthorID       string `json:"author_id"`
	Staff          bool   `json:"staff"`
	ContentPreview string `json:"content_preview"`
}

// ReminderSentPayload payload.
type ReminderSentPayload struct {
	ThresholdHours int  `json:"threshold_hours"`
	PingedStaff    bool `json:"pinged_staff"`
}
