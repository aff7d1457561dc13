package service

import (
	"strings"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/rules"
)

const transcriptBanner = "============================================================"

// GenerateTranscript renders a ticket's full history as plain text. The
// output is deterministic for a given ticket so re-generating a closed
// ticket's transcript yields identical bytes.
func GenerateTranscript(ticket *domain.Ticket, validator *rules.Validator) string {
	var b strings.Builder

	b.WriteString(transcriptBanner)
	b.WriteString("\nTICKET TRANSCRIPT\n")
	b.WriteString(transcriptBanner)
	b.WriteString("\n\n")

	b.WriteString("Ticket:    " + ticket.FormattedID() + "\n")
	b.WriteString("Owner:     " + ticket.OwnerID + "\n")
	b.WriteString("Category:  " + validator.CategoryDisplayName(ticket.CategoryID) + "\n")
	b.WriteString("Status:    " + validator.StatusDisplayName(ticket.StatusID) + "\n")
	if ticket.ClaimedByID != "" {
		b.WriteString("Claimed:   " + ticket.ClaimedByID + "\n")
	}
	b.WriteString("Created:   " + transcriptTime(ticket.CreatedAt) + "\n")
	if ticket.IsClosed() {
		b.WriteString("Closed:    " + transcriptTime(ticket.ClosedAt) + "\n")
		if ticket.ClosedByID != "" {
			b.WriteString("Closed by: " + ticket.ClosedByID + "\n")
		}
		if ticket.CloseReason != "" {
			b.WriteString("Reason:    " + ticket.CloseReason + "\n")
		}
	}
	b.WriteString("\n")

	if len(ticket.CustomFields) > 0 {
		b.WriteString(transcriptBanner)
		b.WriteString("\nSUBMITTED FIELDS\n")
		b.WriteString(transcriptBanner)
		b.WriteString("\n\n")
		for _, field := range ticket.CustomFields {
			b.WriteString(field.Label + ": " + field.Value + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(transcriptBanner)
	b.WriteString("\nMESSAGES\n")
	b.WriteString(transcriptBanner)
	b.WriteString("\n\n")

	for _, message := range ticket.Messages {
		role := "USER"
		if message.Staff {
			role = "STAFF"
		}
		b.WriteString("[" + transcriptTime(message.Timestamp) + "] [" + role + "] " + message.AuthorName + " (" + message.AuthorID + "):\n")
		b.WriteString(message.Content + "\n")
		if len(message.AttachmentURLs) > 0 {
			b.WriteString("Attachments:\n")
			for _, url := range message.AttachmentURLs {
				b.WriteString("  - " + url + "\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(transcriptBanner)
	b.WriteString("\nEND OF TRANSCRIPT\n")
	b.WriteString(transcriptBanner)
	b.WriteString("\n")

	return b.String()
}

func transcriptTime(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02 15:04:05")
}
