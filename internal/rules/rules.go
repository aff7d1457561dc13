// Package rules evaluates the configured status machine: which statuses
// exist, which transitions are legal, and what a transition demands of
// the actor.
package rules

import (
	"strings"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// Transition is the resolved descriptor for one allowed status change.
type Transition struct {
	TargetStatusID        string
	ButtonLabel           string
	RequiresClaim         bool
	AutoClaimOnTransition bool
}

// Validator answers status and transition questions from lookup tables
// built once from configuration.
type Validator struct {
	statuses    map[string]config.StatusConfig
	transitions map[string]map[string]Transition
	categories  map[string]config.Category

	defaultOpenID string
	firstClosedID string
	inProgressID  string
}

// NewValidator builds the lookup tables. Status and category ids are
// matched case-insensitively, as the configuration treats them.
func NewValidator(rules *config.TicketRules) *Validator {
	v := &Validator{
		statuses:    make(map[string]config.StatusConfig, len(rules.Statuses)),
		transitions: make(map[string]map[string]Transition, len(rules.Statuses)),
		categories:  make(map[string]config.Category, len(rules.Categories)),
	}

	for _, status := range rules.Statuses {
		id := normalize(status.ID)
		v.statuses[id] = status

		out := make(map[string]Transition, len(status.Transitions))
		for _, t := range status.Transitions {
			out[normalize(t.TargetStatusID)] = Transition{
				TargetStatusID:        t.TargetStatusID,
				ButtonLabel:           t.ButtonLabel,
				RequiresClaim:         t.RequiresClaim,
				AutoClaimOnTransition: t.AutoClaimOnTransition,
			}
		}
		v.transitions[id] = out

		if status.DefaultOpen && v.defaultOpenID == "" {
			v.defaultOpenID = status.ID
		}
		if status.ClosedState && v.firstClosedID == "" {
			v.firstClosedID = status.ID
		}
		if status.InProgress && v.inProgressID == "" {
			v.inProgressID = status.ID
		}
	}

	if v.defaultOpenID == "" && len(rules.Statuses) > 0 {
		v.defaultOpenID = rules.Statuses[0].ID
	}
	if v.firstClosedID == "" {
		v.firstClosedID = "closed"
	}
	if v.inProgressID == "" {
		v.inProgressID = "in_progress"
	}

	for _, category := range rules.Categories {
		v.categories[normalize(category.ID)] = category
	}

	return v
}

// IsTransitionAllowed reports whether from → to is in the matrix.
func (v *Validator) IsTransitionAllowed(from, to string) bool {
	_, ok := v.transitions[normalize(from)][normalize(to)]
	return ok
}

// GetTransition returns the transition descriptor for from → to.
func (v *Validator) GetTransition(from, to string) (Transition, bool) {
	t, ok := v.transitions[normalize(from)][normalize(to)]
	return t, ok
}

// IsClosedStatus reports whether the status id maps to a closed state.
func (v *Validator) IsClosedStatus(statusID string) bool {
	status, ok := v.statuses[normalize(statusID)]
	return ok && status.ClosedState
}

// DefaultOpenStatusID is the status for newly opened or reopened tickets.
func (v *Validator) DefaultOpenStatusID() string {
	return v.defaultOpenID
}

// FirstClosedStatusID is the status applied when closing a ticket.
func (v *Validator) FirstClosedStatusID() string {
	return v.firstClosedID
}

// InProgressStatusID is the status forced when a ticket is claimed.
func (v *Validator) InProgressStatusID() string {
	return v.inProgressID
}

// StatusDisplayName resolves a status id to its display name, falling
// back to the raw id.
func (v *Validator) StatusDisplayName(statusID string) string {
	if status, ok := v.statuses[normalize(statusID)]; ok {
		return status.DisplayName
	}
	return statusID
}

// CategoryByID looks up a configured category.
func (v *Validator) CategoryByID(categoryID string) (config.Category, bool) {
	category, ok := v.categories[normalize(categoryID)]
	return category, ok
}

// CategoryDisplayName resolves a category id to its display name,
// falling back to the raw id.
func (v *Validator) CategoryDisplayName(categoryID string) string {
	if category, ok := v.categories[normalize(categoryID)]; ok {
		return category.DisplayName
	}
	return categoryID
}

// CheckTransition validates a requested status change for the given
// ticket and actor. On success it returns the claimant to set ("" when
// the claim is untouched). Equal from/to is always rejected.
func (v *Validator) CheckTransition(ticket *domain.Ticket, targetStatusID, actorID string) (claimAs string, err error) {
	from := normalize(ticket.StatusID)
	to := normalize(targetStatusID)

	if from == to {
		return "", apperrors.NewIllegalState("ticket is already in this status")
	}

	transition, ok := v.transitions[from][to]
	if !ok {
		return "", apperrors.NewIllegalState("this status transition is not allowed")
	}

	if transition.RequiresClaim && !ticket.IsClaimed() {
		if transition.AutoClaimOnTransition {
			return actorID, nil
		}
		return "", apperrors.NewIllegalState("this ticket must be claimed before changing status")
	}
	if transition.AutoClaimOnTransition && !ticket.IsClaimed() {
		return actorID, nil
	}
	return "", nil
}

func normalize(id string) string {
	return strings.ToLower(id)
}
