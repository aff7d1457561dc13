package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/cache"
	"github.com/spec-kit/ticket-bot/internal/chunk"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/rules"
	"github.com/spec-kit/ticket-bot/internal/surface"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// SessionClearer clears a user's conversation session. Implemented by
// the session manager; consumed here so closing a ticket can stop the
// owner from replying to it over DM.
type SessionClearer interface {
	Clear(userID string)
}

// TicketService coordinates the ticket lifecycle: creation, message
// mirroring, status changes, claims, closure, and the periodic sweeps.
type TicketService struct {
	repo       repository.TicketRepository
	surf       surface.Surface
	validator  *rules.Validator
	rules      *config.TicketRules
	tags       *cache.TagCache
	dispatcher events.Dispatcher
	sessions   SessionClearer
	metrics    *observability.Metrics
	logger     *zap.Logger

	locks *keyMutex
	now   func() int64
}

// TicketDependencies bundles collaborators for the service.
type TicketDependencies struct {
	Repo       repository.TicketRepository
	Surface    surface.Surface
	Rules      *config.TicketRules
	Tags       *cache.TagCache
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		repo:       deps.Repo,
		surf:       deps.Surface,
		validator:  rules.NewValidator(deps.Rules),
		rules:      deps.Rules,
		tags:       deps.Tags,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		locks:      newKeyMutex(),
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// SetSessionClearer wires the session manager after construction. The
// session manager depends on this service, so the reverse edge is set
// late.
func (s *TicketService) SetSessionClearer(sessions SessionClearer) {
	s.sessions = sessions
}

// Validator exposes the status-rule validator for adapters.
func (s *TicketService) Validator() *rules.Validator {
	return s.validator
}

// Repository exposes the ticket repository for read-only collaborators.
func (s *TicketService) Repository() repository.TicketRepository {
	return s.repo
}

// closedStatusIDs lists every status flagged as a closed state.
func (s *TicketService) closedStatusIDs() []string {
	ids := make([]string, 0, 1)
	for _, status := range s.rules.Statuses {
		if status.ClosedState {
			ids = append(ids, status.ID)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, s.validator.FirstClosedStatusID())
	}
	return ids
}

// FindOpenTicketsByUser returns the user's tickets not in a closed
// status, ordered by ticket number.
func (s *TicketService) FindOpenTicketsByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	return s.repo.FindOpenTicketsByUser(ctx, userID, s.closedStatusIDs())
}

// FindByThreadID looks a ticket up by its thread.
func (s *TicketService) FindByThreadID(ctx context.Context, threadID string) (*domain.Ticket, error) {
	return s.repo.FindByThreadID(ctx, threadID)
}

// CreateTicket opens a ticket thread on behalf of the user. The thread
// creation blocks; every later side effect (role invite, role ping) is
// best-effort and never unwinds the created ticket.
func (s *TicketService) CreateTicket(ctx context.Context, user surface.User, categoryID, description string, fields []domain.FieldValue) (*domain.Ticket, error) {
	if s.rules.IsUserBlacklisted(user.ID) {
		return nil, apperrors.NewValidationError(s.rules.BlacklistMessage, nil)
	}
	if _, ok := s.validator.CategoryByID(categoryID); !ok {
		return nil, apperrors.NewValidationError("invalid category: "+categoryID, nil)
	}
	if err := s.validateDescription(description); err != nil {
		return nil, err
	}
	if s.surf.TicketChannelID() == "" {
		return nil, apperrors.NewConfigurationError("ticket channel not configured")
	}

	openCount, err := s.repo.CountOpenTicketsByUser(ctx, user.ID, s.closedStatusIDs())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if openCount >= s.rules.MaxOpenTicketsPerUser {
		return nil, apperrors.NewCapacityError(
			fmt.Sprintf("you have reached the maximum number of open tickets (%d)", s.rules.MaxOpenTicketsPerUser),
			map[string]any{"max_open_tickets": s.rules.MaxOpenTicketsPerUser})
	}

	number, err := s.repo.NextTicketNumber(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket := domain.NewTicket(number, user.ID)
	ticket.CategoryID = categoryID
	ticket.StatusID = s.validator.DefaultOpenStatusID()
	for _, field := range fields {
		ticket.AddCustomField(field.FieldID, field.Label, field.Value)
	}

	categoryName := s.validator.CategoryDisplayName(categoryID)
	title := fmt.Sprintf("%s - %s - %s", ticket.FormattedID(), categoryName, user.Name)
	header := s.initialPost(user, ticket, categoryName)

	// Header and description are packed together and chunked to the
	// platform limit, so even a header longer than the limit never
	// produces an oversized post.
	parts := chunk.Split(header+description, s.rules.MessageCharLimit)
	firstPost := parts[0]
	overflow := parts[1:]

	thread, err := s.surf.CreateThread(ctx, title, firstPost, s.threadTags(ctx, ticket.StatusID, categoryID))
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create ticket thread: %w", err))
	}
	for _, part := range overflow {
		if err := s.surf.SendToThread(ctx, thread.ThreadID, part); err != nil {
			s.logger.Warn("failed to send description overflow", zap.String("thread", thread.ThreadID), zap.Error(err))
		}
	}

	ticket.ThreadID = thread.ThreadID
	ticket.ForumChannelID = thread.ChannelID
	ticket.AddMessage(domain.TicketMessage{
		AuthorID:   user.ID,
		AuthorName: user.Name,
		Content:    description,
		Timestamp:  s.now(),
		Staff:      false,
	})

	if err := s.repo.Save(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.addRoleMembersToThread(ctx, thread.ThreadID)
	s.pingTicketRole(ctx, thread.ThreadID)

	s.metrics.Inc(observability.CounterTicketsCreated)
	s.publish(ctx, events.Event{
		Type:         events.EventTicketCreated,
		TicketNumber: ticket.TicketNumber,
		ActorID:      user.ID,
		Payload: events.TicketCreatedPayload{
			OwnerID:    user.ID,
			CategoryID: categoryID,
			ThreadID:   thread.ThreadID,
		},
	})
	s.logger.Info("created ticket",
		zap.String("ticket", ticket.FormattedID()),
		zap.String("owner", user.ID),
		zap.String("thread", thread.ThreadID))

	return ticket, nil
}

// HandleTicketMessage records a message posted directly into a ticket
// thread. Staff replies are mirrored to the owner's DM and may trigger
// the staff-reply auto-status rule.
func (s *TicketService) HandleTicketMessage(ctx context.Context, author surface.User, threadID, messageID, content string, attachments []surface.Attachment, isStaff bool) error {
	if s.rules.HiddenMessagePrefix != "" && strings.HasPrefix(content, s.rules.HiddenMessagePrefix) {
		s.logger.Info("hidden message in ticket thread", zap.String("author", author.ID), zap.String("thread", threadID))
		return nil
	}

	ticket, unlock, err := s.lockTicketByThread(ctx, threadID)
	if err != nil || ticket == nil {
		return err
	}
	defer unlock()

	ticket.AddMessage(domain.TicketMessage{
		MessageID:      messageID,
		AuthorID:       author.ID,
		AuthorName:     author.Name,
		Content:        content,
		AttachmentURLs: attachmentURLs(attachments),
		Timestamp:      s.now(),
		Staff:          isStaff,
	})

	if isStaff {
		s.applyAutoStatus(ctx, ticket, s.rules.StaffReplyStatus, "staff reply")
	}

	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	if isStaff {
		s.forwardToOwner(ctx, ticket, author, content, attachments)
	}

	s.publishMessageAdded(ctx, ticket, author.ID, isStaff, content)
	return nil
}

// HandleUserReply mirrors a DM reply from the ticket owner into the
// thread. A reply from anyone but the owner is silently ignored.
func (s *TicketService) HandleUserReply(ctx context.Context, user surface.User, threadID, content string, attachments []surface.Attachment) error {
	ticket, unlock, err := s.lockTicketByThread(ctx, threadID)
	if err != nil || ticket == nil {
		return err
	}
	defer unlock()

	if ticket.OwnerID != user.ID {
		return nil
	}

	prefix := "**" + user.Name + ":** "
	for _, part := range chunk.SplitWithPrefix(prefix, content, s.rules.MessageCharLimit) {
		if err := s.surf.SendToThread(ctx, threadID, part); err != nil {
			s.logger.Warn("failed to mirror user reply", zap.String("thread", threadID), zap.Error(err))
		}
	}

	if len(attachments) > 0 {
		if files := s.downloadAttachments(ctx, attachments); len(files) > 0 {
			if err := s.surf.SendFilesToThread(ctx, threadID, files); err != nil {
				s.logger.Warn("failed to forward attachments to thread", zap.String("thread", threadID), zap.Error(err))
			}
		}
	}

	ticket.AddMessage(domain.TicketMessage{
		AuthorID:       user.ID,
		AuthorName:     user.Name,
		Content:        content,
		AttachmentURLs: attachmentURLs(attachments),
		Timestamp:      s.now(),
		Staff:          false,
	})

	s.applyAutoStatus(ctx, ticket, s.rules.UserReplyStatus, "user reply")

	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	s.publishMessageAdded(ctx, ticket, user.ID, false, content)
	s.logger.Info("user replied via DM", zap.String("user", user.ID), zap.String("ticket", ticket.FormattedID()))
	return nil
}

// applyAutoStatus applies a reply-triggered status rule. No-op when the
// rule is unset, the ticket already has the target status, or the ticket
// is in a closed status.
func (s *TicketService) applyAutoStatus(ctx context.Context, ticket *domain.Ticket, targetStatus, cause string) {
	if targetStatus == "" || ticket.StatusID == targetStatus || s.validator.IsClosedStatus(ticket.StatusID) {
		return
	}
	oldStatus := ticket.StatusID
	ticket.StatusID = targetStatus
	ticket.ResetReminderTracking()
	s.updateThreadTags(ctx, ticket)
	s.logger.Info("auto-updated ticket status",
		zap.String("ticket", ticket.FormattedID()),
		zap.String("from", oldStatus),
		zap.String("to", targetStatus),
		zap.String("cause", cause))
}

// UpdateStatus performs an unconditional status write. Callers are
// responsible for checking transition legality first (see
// TransitionStatus).
func (s *TicketService) UpdateStatus(ctx context.Context, ticket *domain.Ticket, newStatusID string, changedBy surface.User) error {
	unlock := s.locks.Lock(ticket.TicketNumber)
	defer unlock()

	oldStatusID := ticket.StatusID
	ticket.StatusID = newStatusID
	ticket.UpdatedAt = s.now()
	ticket.ResetReminderTracking()

	s.updateThreadTags(ctx, ticket)
	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketStatusChanged,
		TicketNumber: ticket.TicketNumber,
		ActorID:      changedBy.ID,
		Payload:      events.StatusChangedPayload{OldStatusID: oldStatusID, NewStatusID: newStatusID},
	})
	s.logger.Info("ticket status changed",
		zap.String("ticket", ticket.FormattedID()),
		zap.String("from", oldStatusID),
		zap.String("to", newStatusID),
		zap.String("by", changedBy.ID))
	return nil
}

// TransitionStatus validates a requested status change against the
// transition matrix and routes it: closing statuses go through
// CloseTicket, reopening from a closed status goes through ReopenTicket,
// everything else is a plain status write. Auto-claim is applied
// atomically with the transition when the matrix allows it.
func (s *TicketService) TransitionStatus(ctx context.Context, ticket *domain.Ticket, targetStatusID string, actor surface.User) error {
	claimAs, err := s.validator.CheckTransition(ticket, targetStatusID, actor.ID)
	if err != nil {
		return err
	}

	if s.validator.IsClosedStatus(targetStatusID) {
		return s.CloseTicket(ctx, ticket, actor, "Closed via status change")
	}
	if s.validator.IsClosedStatus(ticket.StatusID) {
		return s.ReopenTicket(ctx, ticket, actor, "Reopened via status change")
	}

	if claimAs != "" {
		ticket.ClaimedByID = claimAs
		s.logger.Info("auto-claimed ticket during transition",
			zap.String("ticket", ticket.FormattedID()), zap.String("claimant", claimAs))
	}
	return s.UpdateStatus(ctx, ticket, targetStatusID, actor)
}

// CloseTicket closes a ticket: first configured closed status, close
// metadata, tag re-sync, optional transcript upload, thread
// archive/lock, owner DM, and session teardown.
func (s *TicketService) CloseTicket(ctx context.Context, ticket *domain.Ticket, closedBy surface.User, reason string) error {
	unlock := s.locks.Lock(ticket.TicketNumber)
	defer unlock()
	return s.closeTicketLocked(ctx, ticket, closedBy, reason)
}

// closeTicketLocked is CloseTicket's body; callers hold the ticket lock.
func (s *TicketService) closeTicketLocked(ctx context.Context, ticket *domain.Ticket, closedBy surface.User, reason string) error {
	ticket.StatusID = s.validator.FirstClosedStatusID()
	ticket.ClosedAt = s.now()
	ticket.ClosedByID = closedBy.ID
	ticket.CloseReason = reason
	ticket.UpdatedAt = s.now()

	s.updateThreadTags(ctx, ticket)

	if s.rules.UploadTranscriptOnClose {
		transcript := GenerateTranscript(ticket, s.validator)
		reasonText := reason
		if reasonText == "" {
			reasonText = "No reason provided"
		}
		notice := "**Ticket Closed** by " + closedBy.Mention() + "\n**Reason:** " + reasonText
		if err := s.surf.SendToThread(ctx, ticket.ThreadID, notice); err != nil {
			s.logger.Warn("failed to post close notice", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
		}
		filename := "transcript-" + strings.TrimPrefix(ticket.FormattedID(), "#") + ".txt"
		if err := s.surf.SendFilesToThread(ctx, ticket.ThreadID, []surface.FileUpload{{Name: filename, Data: []byte(transcript)}}); err != nil {
			s.logger.Warn("failed to upload transcript", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
		}
	}

	if err := s.surf.SetThreadArchived(ctx, ticket.ThreadID, true, true); err != nil {
		s.logger.Warn("failed to archive thread", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}

	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	s.notifyTicketClosed(ctx, ticket, closedBy, reason)

	// Stop the owner replying to a ticket that no longer accepts replies.
	if s.sessions != nil {
		s.sessions.Clear(ticket.OwnerID)
	}

	s.metrics.Inc(observability.CounterTicketsClosed)
	s.publish(ctx, events.Event{
		Type:         events.EventTicketClosed,
		TicketNumber: ticket.TicketNumber,
		ActorID:      closedBy.ID,
		Payload:      events.ClosePayload{Reason: reason},
	})
	s.logger.Info("ticket closed", zap.String("ticket", ticket.FormattedID()), zap.String("by", closedBy.ID))
	return nil
}

// ReopenTicket restores a closed ticket to the default open status. Tag
// re-sync happens only after the unarchive completes; tag updates on an
// archived thread are unreliable.
func (s *TicketService) ReopenTicket(ctx context.Context, ticket *domain.Ticket, reopenedBy surface.User, reason string) error {
	if !s.validator.IsClosedStatus(ticket.StatusID) {
		return apperrors.NewIllegalState("ticket is not closed")
	}

	unlock := s.locks.Lock(ticket.TicketNumber)
	defer unlock()

	ticket.StatusID = s.validator.DefaultOpenStatusID()
	ticket.ClosedAt = domain.ClosedAtOpen
	ticket.ClosedByID = ""
	ticket.CloseReason = ""
	ticket.UpdatedAt = s.now()
	ticket.ResetReminderTracking()

	if err := s.surf.SetThreadArchived(ctx, ticket.ThreadID, false, false); err != nil {
		s.logger.Warn("failed to unarchive thread", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	} else {
		s.updateThreadTags(ctx, ticket)
		reasonText := reason
		if reasonText == "" {
			reasonText = "No reason provided"
		}
		notice := "**Ticket Reopened** by " + reopenedBy.Mention() + "\n**Reason:** " + reasonText
		if err := s.surf.SendToThread(ctx, ticket.ThreadID, notice); err != nil {
			s.logger.Warn("failed to post reopen notice", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
		}
	}

	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	message := fmt.Sprintf("Your ticket **%s** has been reopened by %s.\n\nYou can continue the conversation by replying here.",
		ticket.FormattedID(), reopenedBy.Name)
	if err := s.surf.SendDM(ctx, ticket.OwnerID, message); err != nil {
		s.logger.Warn("failed to notify owner of reopen", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketReopened,
		TicketNumber: ticket.TicketNumber,
		ActorID:      reopenedBy.ID,
		Payload:      events.ClosePayload{Reason: reason},
	})
	s.logger.Info("ticket reopened", zap.String("ticket", ticket.FormattedID()), zap.String("by", reopenedBy.ID))
	return nil
}

// ClaimTicket assigns the ticket to a staff member and forces the
// in-progress status.
func (s *TicketService) ClaimTicket(ctx context.Context, ticket *domain.Ticket, staff surface.User) error {
	unlock := s.locks.Lock(ticket.TicketNumber)
	defer unlock()

	ticket.ClaimedByID = staff.ID
	ticket.StatusID = s.validator.InProgressStatusID()
	ticket.UpdatedAt = s.now()
	ticket.ResetReminderTracking()

	s.updateThreadTags(ctx, ticket)
	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	if err := s.surf.SendToThread(ctx, ticket.ThreadID, "**Ticket claimed** by "+staff.Mention()); err != nil {
		s.logger.Warn("failed to announce claim", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketClaimed,
		TicketNumber: ticket.TicketNumber,
		ActorID:      staff.ID,
		Payload:      events.ClaimPayload{ClaimantID: staff.ID},
	})
	s.logger.Info("ticket claimed", zap.String("ticket", ticket.FormattedID()), zap.String("by", staff.ID))
	return nil
}

// TransferTicket hands the claim to another staff member. The claim is
// overwritten, never cleared; status does not change.
func (s *TicketService) TransferTicket(ctx context.Context, ticket *domain.Ticket, newStaff, transferredBy surface.User) error {
	unlock := s.locks.Lock(ticket.TicketNumber)
	defer unlock()

	previous := ticket.ClaimedByID
	ticket.ClaimedByID = newStaff.ID
	ticket.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	var announcement string
	if previous != "" {
		announcement = "**Ticket transferred** from <@" + previous + "> to " + newStaff.Mention() + " by " + transferredBy.Mention()
	} else {
		announcement = "**Ticket assigned** to " + newStaff.Mention() + " by " + transferredBy.Mention()
	}
	if err := s.surf.SendToThread(ctx, ticket.ThreadID, announcement); err != nil {
		s.logger.Warn("failed to announce transfer", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:         events.EventTicketTransferred,
		TicketNumber: ticket.TicketNumber,
		ActorID:      transferredBy.ID,
		Payload:      events.ClaimPayload{PreviousClaimantID: previous, ClaimantID: newStaff.ID},
	})
	s.logger.Info("ticket transferred",
		zap.String("ticket", ticket.FormattedID()),
		zap.String("from", previous),
		zap.String("to", newStaff.ID),
		zap.String("by", transferredBy.ID))
	return nil
}

// CloseStaleTickets auto-closes tickets that sat in the configured
// auto-close status beyond the cutoff. One failing ticket never aborts
// the sweep.
func (s *TicketService) CloseStaleTickets(ctx context.Context, bot surface.User) {
	if !s.rules.AutoCloseEnabled {
		return
	}

	cutoff := s.now() - int64(s.rules.AutoCloseDays)*24*int64(time.Hour/time.Millisecond)
	tickets, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("stale-close sweep: listing tickets failed", zap.Error(err))
		return
	}

	for i := range tickets {
		snapshot := &tickets[i]
		if snapshot.StatusID != s.rules.AutoCloseStatusID || snapshot.UpdatedAt >= cutoff {
			continue
		}
		closed, err := s.closeStaleTicket(ctx, snapshot.TicketNumber, cutoff, bot)
		if err != nil {
			s.logger.Error("failed to auto-close ticket", zap.String("ticket", snapshot.FormattedID()), zap.Error(err))
			continue
		}
		if closed {
			s.logger.Info("auto-closed stale ticket",
				zap.String("ticket", snapshot.FormattedID()),
				zap.String("status", s.rules.AutoCloseStatusID),
				zap.Int("days", s.rules.AutoCloseDays))
		}
	}
}

// closeStaleTicket re-reads the ticket under its lock and re-checks the
// stale condition on the fresh copy. Activity recorded after the
// sweep's snapshot keeps the ticket open instead of being overwritten
// by a stale save.
func (s *TicketService) closeStaleTicket(ctx context.Context, ticketNumber int, cutoff int64, bot surface.User) (bool, error) {
	unlock := s.locks.Lock(ticketNumber)
	defer unlock()

	ticket, err := s.repo.FindByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapError(err)
	}
	if ticket.StatusID != s.rules.AutoCloseStatusID || ticket.UpdatedAt >= cutoff {
		return false, nil
	}
	if err := s.closeTicketLocked(ctx, ticket, bot, s.rules.AutoCloseMessage); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeOldClosedTickets deletes closed tickets whose close timestamp
// fell out of the retention window. One failing ticket never aborts the
// sweep.
func (s *TicketService) PurgeOldClosedTickets(ctx context.Context) {
	if !s.rules.PurgeClosedEnabled || s.rules.ClosedTicketRetentionDays <= 0 {
		return
	}

	cutoff := s.now() - int64(s.rules.ClosedTicketRetentionDays)*24*int64(time.Hour/time.Millisecond)
	tickets, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("retention sweep: listing tickets failed", zap.Error(err))
		return
	}

	purged := 0
	for i := range tickets {
		snapshot := &tickets[i]
		if !snapshot.IsClosed() || snapshot.ClosedAt >= cutoff {
			continue
		}
		deleted, err := s.purgeTicket(ctx, snapshot.TicketNumber, cutoff)
		if err != nil {
			s.logger.Error("failed to purge ticket", zap.String("ticket", snapshot.FormattedID()), zap.Error(err))
			continue
		}
		if deleted {
			purged++
			s.metrics.Inc(observability.CounterTicketsPurged)
		}
	}

	if purged > 0 {
		s.logger.Info("retention sweep complete",
			zap.Int("purged", purged),
			zap.Int("retention_days", s.rules.ClosedTicketRetentionDays))
	}
}

// purgeTicket re-checks the retention condition on a fresh copy under
// the ticket lock before deleting, so a reopen committed after the
// sweep's snapshot keeps the ticket.
func (s *TicketService) purgeTicket(ctx context.Context, ticketNumber int, cutoff int64) (bool, error) {
	unlock := s.locks.Lock(ticketNumber)
	defer unlock()

	ticket, err := s.repo.FindByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapError(err)
	}
	if !ticket.IsClosed() || ticket.ClosedAt >= cutoff {
		return false, nil
	}
	if err := s.repo.DeleteByNumber(ctx, ticketNumber); err != nil {
		return false, apperrors.MapError(err)
	}
	return true, nil
}

// SendReminders evaluates every open ticket against the reminder
// thresholds and sends at most one escalation per ticket: the highest
// threshold crossed that is above the ticket's watermark. Lower
// thresholds skipped between two sweeps are skipped for good.
func (s *TicketService) SendReminders(ctx context.Context) {
	if !s.rules.RemindersEnabled || len(s.rules.ReminderThresholds) == 0 {
		return
	}

	now := s.now()
	tickets, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("reminder sweep: listing tickets failed", zap.Error(err))
		return
	}

	thresholds := append([]config.ReminderThreshold(nil), s.rules.ReminderThresholds...)
	sort.Slice(thresholds, func(i, j int) bool {
		return thresholds[i].HoursWithoutResponse < thresholds[j].HoursWithoutResponse
	})

	remindersSent := 0
	for i := range tickets {
		snapshot := &tickets[i]
		applicable, err := s.remindTicket(ctx, snapshot.TicketNumber, thresholds, now)
		if err != nil {
			s.logger.Error("failed to send reminder", zap.String("ticket", snapshot.FormattedID()), zap.Error(err))
			continue
		}
		if applicable == nil {
			continue
		}

		remindersSent++
		s.metrics.Inc(observability.CounterRemindersSent)
		s.publish(ctx, events.Event{
			Type:         events.EventReminderSent,
			TicketNumber: snapshot.TicketNumber,
			Payload: events.ReminderSentPayload{
				ThresholdHours: applicable.HoursWithoutResponse,
				PingedStaff:    applicable.PingStaff,
			},
		})
		s.logger.Info("sent reminder",
			zap.Int("threshold_hours", applicable.HoursWithoutResponse),
			zap.String("ticket", snapshot.FormattedID()))
	}

	if remindersSent > 0 {
		s.logger.Info("reminder sweep complete", zap.Int("sent", remindersSent))
	}
}

// remindTicket re-reads the ticket under its lock and evaluates the
// thresholds against the fresh copy, so a reply committed after the
// sweep's snapshot resets the clock instead of being overwritten by a
// stale watermark save. Returns the threshold that fired, or nil.
func (s *TicketService) remindTicket(ctx context.Context, ticketNumber int, thresholds []config.ReminderThreshold, now int64) (*config.ReminderThreshold, error) {
	unlock := s.locks.Lock(ticketNumber)
	defer unlock()

	ticket, err := s.repo.FindByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.IsClosed() || s.validator.IsClosedStatus(ticket.StatusID) {
		return nil, nil
	}

	hoursSinceUpdate := roundedHoursSince(now, ticket.UpdatedAt)

	var applicable *config.ReminderThreshold
	for j := range thresholds {
		threshold := thresholds[j]
		if hoursSinceUpdate >= int64(threshold.HoursWithoutResponse) &&
			threshold.HoursWithoutResponse > ticket.LastReminderThresholdHours {
			applicable = &thresholds[j]
		}
	}
	if applicable == nil {
		return nil, nil
	}

	if err := s.sendReminderToThread(ctx, ticket, *applicable); err != nil {
		return nil, err
	}
	ticket.LastReminderSent = now
	ticket.LastReminderThresholdHours = applicable.HoursWithoutResponse
	if err := s.repo.Save(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return applicable, nil
}

// roundedHoursSince converts a millisecond interval to whole hours,
// rounding half up: a ticket idle 23.6h counts as 24.
func roundedHoursSince(now, since int64) int64 {
	const hourMillis = int64(time.Hour / time.Millisecond)
	diff := now - since
	if diff < 0 {
		return 0
	}
	return (diff + hourMillis/2) / hourMillis
}

func (s *TicketService) sendReminderToThread(ctx context.Context, ticket *domain.Ticket, threshold config.ReminderThreshold) error {
	var b strings.Builder
	b.WriteString(":bell: **Reminder:** ")
	b.WriteString(threshold.Message)
	if threshold.PingStaff && s.rules.TicketRoleID != "" {
		b.WriteString("\n<@&")
		b.WriteString(s.rules.TicketRoleID)
		b.WriteString(">")
	}
	return s.surf.SendToThread(ctx, ticket.ThreadID, b.String())
}

// lockTicketByThread fetches the ticket for a thread and acquires its
// lock, re-reading under the lock so the caller works on fresh state.
// A nil ticket with a nil error means the thread has no ticket.
func (s *TicketService) lockTicketByThread(ctx context.Context, threadID string) (*domain.Ticket, func(), error) {
	ticket, err := s.repo.FindByThreadID(ctx, threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, apperrors.MapError(err)
	}

	unlock := s.locks.Lock(ticket.TicketNumber)
	fresh, err := s.repo.FindByThreadID(ctx, threadID)
	if err != nil {
		unlock()
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, apperrors.MapError(err)
	}
	return fresh, unlock, nil
}

func (s *TicketService) validateDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return apperrors.NewValidationError("description is required", nil)
	}
	if len(trimmed) < s.rules.MinDescriptionLength {
		return apperrors.NewValidationError(
			fmt.Sprintf("description must be at least %d characters", s.rules.MinDescriptionLength), nil)
	}
	if len(trimmed) > s.rules.MaxDescriptionLength {
		return apperrors.NewValidationError(
			fmt.Sprintf("description cannot exceed %d characters", s.rules.MaxDescriptionLength), nil)
	}
	return nil
}

func (s *TicketService) initialPost(user surface.User, ticket *domain.Ticket, categoryName string) string {
	return fmt.Sprintf("**New Ticket %s**\n\n**User:** %s\n**User ID:** %s\n**Category:** %s\n**Created:** <t:%d:F>\n\n**Description:**\n",
		ticket.FormattedID(), user.Mention(), user.ID, categoryName, ticket.CreatedAt/1000)
}

// threadTags resolves the status and category tags for a ticket.
// Resolution failures degrade to fewer tags, never an error.
func (s *TicketService) threadTags(ctx context.Context, statusID, categoryID string) []surface.Tag {
	tags := make([]surface.Tag, 0, 2)
	if tag, ok := s.tags.GetByName(ctx, s.validator.StatusDisplayName(statusID)); ok {
		tags = append(tags, tag)
	}
	if category, ok := s.validator.CategoryByID(categoryID); ok {
		if tag, found := s.tags.GetByName(ctx, category.DisplayName); found {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (s *TicketService) updateThreadTags(ctx context.Context, ticket *domain.Ticket) {
	tags := s.threadTags(ctx, ticket.StatusID, ticket.CategoryID)
	if err := s.surf.ApplyThreadTags(ctx, ticket.ThreadID, tags); err != nil {
		s.logger.Warn("failed to sync thread tags", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}
}

// SyncAllTicketTags re-applies status and category tags on every ticket
// thread. Used at startup after the tag cache refresh.
func (s *TicketService) SyncAllTicketTags(ctx context.Context) {
	tickets, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("tag sync: listing tickets failed", zap.Error(err))
		return
	}
	for i := range tickets {
		s.updateThreadTags(ctx, &tickets[i])
	}
	s.logger.Info("ticket tag sync complete", zap.Int("tickets", len(tickets)))
}

func (s *TicketService) addRoleMembersToThread(ctx context.Context, threadID string) {
	if s.rules.TicketRoleID == "" {
		return
	}
	members, err := s.surf.RoleMembers(ctx, s.rules.TicketRoleID)
	if err != nil {
		s.logger.Warn("failed to resolve ticket role members", zap.Error(err))
		return
	}
	for _, member := range members {
		if err := s.surf.AddThreadMember(ctx, threadID, member.ID); err != nil {
			s.logger.Warn("failed to add member to ticket thread",
				zap.String("member", member.ID), zap.String("thread", threadID), zap.Error(err))
		}
	}
}

func (s *TicketService) pingTicketRole(ctx context.Context, threadID string) {
	if s.rules.TicketRoleID == "" {
		return
	}
	if err := s.surf.SendToThread(ctx, threadID, "<@&"+s.rules.TicketRoleID+">"); err != nil {
		s.logger.Warn("failed to ping ticket role", zap.String("thread", threadID), zap.Error(err))
	}
}

// forwardToOwner mirrors a staff reply into the owner's DM channel.
// Forwarding failures are logged, never surfaced to the staff author.
func (s *TicketService) forwardToOwner(ctx context.Context, ticket *domain.Ticket, staff surface.User, content string, attachments []surface.Attachment) {
	prefix := fmt.Sprintf("**[Ticket %s] %s:** ", ticket.FormattedID(), staff.Name)
	for _, part := range chunk.SplitWithPrefix(prefix, content, s.rules.MessageCharLimit) {
		if err := s.surf.SendDM(ctx, ticket.OwnerID, part); err != nil {
			s.logger.Warn("failed to forward staff reply to owner",
				zap.String("ticket", ticket.FormattedID()), zap.Error(err))
			return
		}
	}
	if len(attachments) > 0 {
		if files := s.downloadAttachments(ctx, attachments); len(files) > 0 {
			if err := s.surf.SendFilesDM(ctx, ticket.OwnerID, files); err != nil {
				s.logger.Warn("failed to forward attachments to owner",
					zap.String("ticket", ticket.FormattedID()), zap.Error(err))
			}
		}
	}
}

// downloadAttachments fetches attachment bytes for re-upload. A failed
// download drops that attachment and continues.
func (s *TicketService) downloadAttachments(ctx context.Context, attachments []surface.Attachment) []surface.FileUpload {
	files := make([]surface.FileUpload, 0, len(attachments))
	for _, attachment := range attachments {
		data, err := s.surf.FetchAttachment(ctx, attachment.URL)
		if err != nil {
			s.logger.Error("failed to download attachment", zap.String("file", attachment.FileName), zap.Error(err))
			continue
		}
		files = append(files, surface.FileUpload{Name: attachment.FileName, Data: data})
	}
	return files
}

func (s *TicketService) notifyTicketClosed(ctx context.Context, ticket *domain.Ticket, closedBy surface.User, reason string) {
	if reason == "" {
		reason = "No reason provided"
	}
	message := fmt.Sprintf("Your ticket **%s** has been closed by %s.\n\n**Reason:** %s\n\nIf you need further assistance, feel free to open a new ticket by sending me a message.",
		ticket.FormattedID(), closedBy.Name, reason)
	if err := s.surf.SendDM(ctx, ticket.OwnerID, message); err != nil {
		s.logger.Warn("failed to notify owner of close", zap.String("ticket", ticket.FormattedID()), zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) publishMessageAdded(ctx context.Context, ticket *domain.Ticket, authorID string, staff bool, content string) {
	s.publish(ctx, events.Event{
		Type:         events.EventTicketMessageAdded,
		TicketNumber: ticket.TicketNumber,
		ActorID:      authorID,
		Payload: events.MessageAddedPayload{
			AuthorID:       authorID,
			Staff:          staff,
			ContentPreview: preview(content, 120),
		},
	})
}

func attachmentURLs(attachments []surface.Attachment) []string {
	if len(attachments) == 0 {
		return nil
	}
	urls := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		urls = append(urls, attachment.URL)
	}
	return urls
}

func preview(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	if max <= 3 {
		return content[:max]
	}
	return content[:max-3] + "..."
}
