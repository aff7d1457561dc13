package domain

// ConversationStep identifies where a user is in the private-message
// ticket flow.
type ConversationStep string

const (
	StepInitial             ConversationStep = "INITIAL"
	StepSelectingCategory   ConversationStep = "SELECTING_CATEGORY"
	StepEnteringDescription ConversationStep = "ENTERING_DESCRIPTION"
	StepReplyingToTicket    ConversationStep = "REPLYING_TO_TICKET"
)

// ConversationState is ephemeral per-user state for the private-message
// ticket creation/reply flow. It is process-local and never persisted;
// an absent entry is equivalent to StepInitial.
type ConversationState struct {
	UserID           string
	Step             ConversationStep
	SelectedCategory string
	ReplyToThreadID  string
}
