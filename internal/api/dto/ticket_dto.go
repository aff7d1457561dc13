package dto

// TicketSummary response.
type TicketSummary struct {
	TicketNumber int    `json:"ticket_number"`
	FormattedID  string `json:"formatted_id"`
	OwnerID      string `json:"owner_id"`
	CategoryID   string `json:"category_id"`
	StatusID     string `json:"status_id"`
	ClaimedByID  string `json:"claimed_by_id,omitempty"`
	ThreadID     string `json:"thread_id"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	ClosedAt     int64  `json:"closed_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	ClosedByID   string            `json:"closed_by_id,omitempty"`
	CloseReason  string            `json:"close_reason,omitempty"`
	CustomFields []FieldResponse   `json:"custom_fields,omitempty"`
	Messages     []MessageResponse `json:"messages"`
}

// MessageResponse represents one recorded ticket message.
type MessageResponse struct {
	MessageID      string   `json:"message_id,omitempty"`
	AuthorID       string   `json:"author_id"`
	AuthorName     string   `json:"author_name"`
	Content        string   `json:"content"`
	AttachmentURLs []string `json:"attachment_urls,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	Staff          bool     `json:"staff"`
}

// FieldResponse is a submitted custom field.
type FieldResponse struct {
	FieldID string `json:"field_id"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}
