// Package surface defines the messaging-platform collaborator consumed
// by the ticket engine. Implementations adapt a concrete chat platform;
// the engine only depends on this interface.
package surface

import "context"

// User is a resolved platform user.
type User struct {
	ID   string
	Name string
}

// Mention renders the platform mention syntax for the user.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

// Tag is a thread tag (status or category marker) on the ticket forum.
type Tag struct {
	ID   string
	Name string
}

// ThreadRef identifies a created thread and its parent channel.
type ThreadRef struct {
	ThreadID  string
	ChannelID string
}

// Attachment is an uploaded file reference on an inbound message.
type Attachment struct {
	URL      string
	FileName string
}

// FileUpload is an in-memory file to attach to an outbound message.
type FileUpload struct {
	Name string
	Data []byte
}

// MenuOption is one selectable entry in a prompt menu.
type MenuOption struct {
	Label       string
	Value       string
	Description string
}

// Button is an action button on a prompt.
type Button struct {
	ID    string
	Label string
}

// Prompt is an interactive message: body text plus optional menu and
// buttons. How these render is the adapter's concern.
type Prompt struct {
	Text            string
	MenuID          string
	MenuPlaceholder string
	MenuOptions     []MenuOption
	Buttons         []Button
}

// Surface is the messaging collaborator. All sends are best-effort
// fire-and-forget from the engine's perspective except CreateThread,
// whose result is required before a ticket can be persisted.
type Surface interface {
	// CreateThread opens a threaded post in the ticket channel and
	// blocks until the thread handle is known.
	CreateThread(ctx context.Context, title, body string, tags []Tag) (ThreadRef, error)

	SendToThread(ctx context.Context, threadID, text string) error
	SendFilesToThread(ctx context.Context, threadID string, files []FileUpload) error

	SendDM(ctx context.Context, userID, text string) error
	SendDMPrompt(ctx context.Context, userID string, prompt Prompt) error
	SendFilesDM(ctx context.Context, userID string, files []FileUpload) error

	// ApplyThreadTags replaces the applied tags on a thread.
	ApplyThreadTags(ctx context.Context, threadID string, tags []Tag) error
	// AvailableTags lists the tags defined on the ticket channel.
	AvailableTags(ctx context.Context) ([]Tag, error)

	// SetThreadArchived archives/locks or unarchives/unlocks a thread.
	SetThreadArchived(ctx context.Context, threadID string, archived, locked bool) error

	// AddThreadMember invites a user into a thread.
	AddThreadMember(ctx context.Context, threadID, userID string) error
	// RoleMembers resolves the members holding a role.
	RoleMembers(ctx context.Context, roleID string) ([]User, error)

	// ResolveUser fetches a user's current display identity.
	ResolveUser(ctx context.Context, userID string) (User, error)

	// FetchAttachment downloads the bytes behind an attachment URL.
	FetchAttachment(ctx context.Context, url string) ([]byte, error)

	// TicketChannelID returns the configured ticket channel, or "" when
	// none is configured.
	TicketChannelID() string
}
