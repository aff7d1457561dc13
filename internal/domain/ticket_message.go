package domain

// TicketMessage is one entry in a ticket's mirrored conversation.
// AuthorName is a display snapshot taken at send time and never
// re-resolved.
type TicketMessage struct {
	MessageID      string   `json:"messageId,omitempty"`
	AuthorID       string   `json:"authorId"`
	AuthorName     string   `json:"authorName"`
	Content        string   `json:"content"`
	AttachmentURLs []string `json:"attachmentUrls,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	Staff          bool     `json:"staff"`
}

// FieldValue is a custom field submitted during ticket creation.
type FieldValue struct {
	FieldID string `json:"fieldId"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}
