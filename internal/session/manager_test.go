package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/cache"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/surface"
)

type stubSurface struct {
	dms         map[string][]string
	prompts     map[string][]surface.Prompt
	threadSends map[string][]string
	threadSeq   int
}

func newStubSurface() *stubSurface {
	return &stubSurface{
		dms:         make(map[string][]string),
		prompts:     make(map[string][]surface.Prompt),
		threadSends: make(map[string][]string),
	}
}

func (s *stubSurface) CreateThread(context.Context, string, string, []surface.Tag) (surface.ThreadRef, error) {
	s.threadSeq++
	return surface.ThreadRef{ThreadID: "thread-" + strings.Repeat("x", s.threadSeq), ChannelID: "chan-1"}, nil
}

func (s *stubSurface) SendToThread(_ context.Context, threadID, text string) error {
	s.threadSends[threadID] = append(s.threadSends[threadID], text)
	return nil
}

func (s *stubSurface) SendFilesToThread(context.Context, string, []surface.FileUpload) error {
	return nil
}

func (s *stubSurface) SendDM(_ context.Context, userID, text string) error {
	s.dms[userID] = append(s.dms[userID], text)
	return nil
}

func (s *stubSurface) SendDMPrompt(_ context.Context, userID string, prompt surface.Prompt) error {
	s.prompts[userID] = append(s.prompts[userID], prompt)
	return nil
}

func (s *stubSurface) SendFilesDM(context.Context, string, []surface.FileUpload) error { return nil }

func (s *stubSurface) ApplyThreadTags(context.Context, string, []surface.Tag) error { return nil }

func (s *stubSurface) AvailableTags(context.Context) ([]surface.Tag, error) { return nil, nil }

func (s *stubSurface) SetThreadArchived(context.Context, string, bool, bool) error { return nil }

func (s *stubSurface) AddThreadMember(context.Context, string, string) error { return nil }

func (s *stubSurface) RoleMembers(context.Context, string) ([]surface.User, error) { return nil, nil }

func (s *stubSurface) ResolveUser(_ context.Context, userID string) (surface.User, error) {
	return surface.User{ID: userID, Name: userID}, nil
}

func (s *stubSurface) FetchAttachment(context.Context, string) ([]byte, error) { return nil, nil }

func (s *stubSurface) TicketChannelID() string { return "chan-1" }

func newTestManager(t *testing.T) (*Manager, *stubSurface, *repository.MemoryTicketRepository) {
	t.Helper()
	rules := config.DefaultRules()
	surf := newStubSurface()
	repo := repository.NewMemoryTicketRepository()
	logger := zap.NewNop()

	tickets := service.NewTicketService(service.TicketDependencies{
		Repo:       repo,
		Surface:    surf,
		Rules:      rules,
		Tags:       cache.NewTagCache(nil, surf, logger),
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(),
		Logger:     logger,
	})

	store := NewStore(15*time.Minute, logger)
	manager := NewManager(store, tickets, surf, rules, logger)
	tickets.SetSessionClearer(manager)
	return manager, surf, repo
}

func seedOpenTicket(t *testing.T, repo *repository.MemoryTicketRepository, ownerID, threadID string) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	number, err := repo.NextTicketNumber(ctx)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	ticket := domain.NewTicket(number, ownerID)
	ticket.CategoryID = "general"
	ticket.StatusID = "open"
	ticket.ThreadID = threadID
	if err := repo.Save(ctx, ticket); err != nil {
		t.Fatalf("save: %v", err)
	}
	return ticket
}

func TestFirstDMStartsNewTicketFlow(t *testing.T) {
	manager, surf, _ := newTestManager(t)
	user := surface.User{ID: "u1", Name: "alice"}

	if err := manager.HandleDM(context.Background(), user, "hello", nil); err != nil {
		t.Fatalf("handle dm: %v", err)
	}

	prompts := surf.prompts["u1"]
	if len(prompts) != 1 || prompts[0].MenuID != MenuCategorySelect {
		t.Fatalf("expected category prompt, got %+v", prompts)
	}
	if got := manager.store.Get("u1"); got.Step != domain.StepSelectingCategory {
		t.Fatalf("step = %v, want SELECTING_CATEGORY", got.Step)
	}
}

func TestDMWithOpenTicketsShowsTicketMenu(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	seedOpenTicket(t, repo, "u1", "thread-1")
	user := surface.User{ID: "u1", Name: "alice"}

	if err := manager.HandleDM(context.Background(), user, "hello", nil); err != nil {
		t.Fatalf("handle dm: %v", err)
	}

	prompts := surf.prompts["u1"]
	if len(prompts) != 1 || prompts[0].MenuID != MenuTicketSelect {
		t.Fatalf("expected ticket menu, got %+v", prompts)
	}
	if len(prompts[0].MenuOptions) != 1 || prompts[0].MenuOptions[0].Value != "thread-1" {
		t.Fatalf("menu must list the open ticket, got %+v", prompts[0].MenuOptions)
	}
	if len(prompts[0].Buttons) != 1 || prompts[0].Buttons[0].ID != ButtonNewTicket {
		t.Fatalf("menu must offer the new-ticket button")
	}
}

func TestCategorySelectionThenDescriptionCreatesTicket(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	user := surface.User{ID: "u1", Name: "alice"}
	ctx := context.Background()

	if err := manager.HandleCategorySelection(ctx, user, "general"); err != nil {
		t.Fatalf("category selection: %v", err)
	}
	if got := manager.store.Get("u1"); got.Step != domain.StepEnteringDescription || got.SelectedCategory != "general" {
		t.Fatalf("unexpected state %+v", got)
	}

	if err := manager.HandleDM(ctx, user, "my account is locked and I cannot log in", nil); err != nil {
		t.Fatalf("description dm: %v", err)
	}

	tickets, _ := repo.GetAll(ctx)
	if len(tickets) != 1 || tickets[0].CategoryID != "general" {
		t.Fatalf("ticket must be created from the flow, got %+v", tickets)
	}
	got := manager.store.Get("u1")
	if got.Step != domain.StepReplyingToTicket || got.ReplyToThreadID != tickets[0].ThreadID {
		t.Fatalf("session must move to reply mode on the new thread, got %+v", got)
	}
	dms := surf.dms["u1"]
	if len(dms) == 0 || !strings.Contains(dms[len(dms)-1], "#0001") {
		t.Fatalf("confirmation DM must name the ticket, got %v", dms)
	}
}

func TestShortDescriptionClearsSessionAndExplains(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	user := surface.User{ID: "u1", Name: "alice"}
	ctx := context.Background()

	if err := manager.HandleCategorySelection(ctx, user, "general"); err != nil {
		t.Fatalf("category selection: %v", err)
	}
	if err := manager.HandleDM(ctx, user, "short", nil); err != nil {
		t.Fatalf("validation failure must not bubble as an error: %v", err)
	}

	tickets, _ := repo.GetAll(ctx)
	if len(tickets) != 0 {
		t.Fatalf("no ticket must be created")
	}
	if got := manager.store.Get("u1"); got.Step != domain.StepInitial {
		t.Fatalf("session must be cleared on validation failure, got %+v", got)
	}
	dms := surf.dms["u1"]
	if len(dms) == 0 || !strings.Contains(dms[len(dms)-1], "at least") {
		t.Fatalf("user must see the validation message, got %v", dms)
	}
}

func TestReplyModeForwardsToThread(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	seedOpenTicket(t, repo, "u1", "thread-1")
	user := surface.User{ID: "u1", Name: "alice"}
	ctx := context.Background()

	if err := manager.HandleTicketSelection(ctx, user, "thread-1"); err != nil {
		t.Fatalf("ticket selection: %v", err)
	}
	if err := manager.HandleDM(ctx, user, "any update on this?", nil); err != nil {
		t.Fatalf("reply dm: %v", err)
	}

	sends := surf.threadSends["thread-1"]
	if len(sends) != 1 || sends[0] != "**alice:** any update on this?" {
		t.Fatalf("reply must be mirrored to the thread, got %v", sends)
	}
}

func TestReplyToClosedTicketFallsBackToMenu(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	ticket := seedOpenTicket(t, repo, "u1", "thread-1")
	user := surface.User{ID: "u1", Name: "alice"}
	ctx := context.Background()

	if err := manager.HandleTicketSelection(ctx, user, "thread-1"); err != nil {
		t.Fatalf("ticket selection: %v", err)
	}

	// Close the ticket behind the session's back.
	ticket.StatusID = "closed"
	ticket.ClosedAt = time.Now().UnixMilli()
	if err := repo.Save(ctx, ticket); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := manager.HandleDM(ctx, user, "hello again", nil); err != nil {
		t.Fatalf("reply dm: %v", err)
	}

	if len(surf.threadSends["thread-1"]) != 0 {
		t.Fatalf("nothing must be forwarded to a closed ticket")
	}
	found := false
	for _, dm := range surf.dms["u1"] {
		if strings.Contains(dm, "has been closed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("user must be told the ticket closed, got %v", surf.dms["u1"])
	}
	// The DM is re-dispatched from the initial step: no other open
	// tickets, so the new-ticket flow starts.
	prompts := surf.prompts["u1"]
	if len(prompts) == 0 || prompts[len(prompts)-1].MenuID != MenuCategorySelect {
		t.Fatalf("fallback must restart the flow, got %+v", prompts)
	}
}

func TestTicketSelectionByNonOwnerIgnored(t *testing.T) {
	manager, surf, repo := newTestManager(t)
	seedOpenTicket(t, repo, "someone-else", "thread-1")
	user := surface.User{ID: "u1", Name: "alice"}

	if err := manager.HandleTicketSelection(context.Background(), user, "thread-1"); err != nil {
		t.Fatalf("selection: %v", err)
	}
	if got := manager.store.Get("u1"); got.Step != domain.StepInitial {
		t.Fatalf("foreign ticket selection must not change state, got %+v", got)
	}
	if len(surf.dms["u1"]) != 0 {
		t.Fatalf("foreign ticket selection must be silent")
	}
}

func TestNewTicketButton(t *testing.T) {
	manager, surf, _ := newTestManager(t)
	user := surface.User{ID: "u1", Name: "alice"}

	if err := manager.HandleButton(context.Background(), user, ButtonNewTicket); err != nil {
		t.Fatalf("button: %v", err)
	}
	prompts := surf.prompts["u1"]
	if len(prompts) != 1 || prompts[0].MenuID != MenuCategorySelect {
		t.Fatalf("new-ticket button must prompt for a category, got %+v", prompts)
	}
}

func TestBlacklistedUserGetsBlacklistMessage(t *testing.T) {
	manager, surf, _ := newTestManager(t)
	manager.rules.BlacklistedUserIDs = []string{"banned"}
	user := surface.User{ID: "banned", Name: "mallory"}

	if err := manager.HandleDM(context.Background(), user, "hello", nil); err != nil {
		t.Fatalf("handle dm: %v", err)
	}
	dms := surf.dms["banned"]
	if len(dms) != 1 || dms[0] != manager.rules.BlacklistMessage {
		t.Fatalf("blacklisted user must get the blacklist message, got %v", dms)
	}
	if len(surf.prompts["banned"]) != 0 {
		t.Fatalf("blacklisted user must not get a category prompt")
	}
}
