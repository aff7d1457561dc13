package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TicketRules is the business-rule configuration driving the ticket
// lifecycle: statuses, the transition matrix, categories, reminder
// thresholds, and the auto-close policy.
type TicketRules struct {
	ForumChannelID string `yaml:"forumChannelId"`
	TicketRoleID   string `yaml:"ticketRoleId"`

	Categories []Category     `yaml:"categories"`
	Statuses   []StatusConfig `yaml:"statuses"`

	// Auto-status: status applied when the user or staff replies.
	// Empty disables the rule.
	UserReplyStatus  string `yaml:"userReplyStatus"`
	StaffReplyStatus string `yaml:"staffReplyStatus"`

	RemindersEnabled             bool                `yaml:"remindersEnabled"`
	ReminderThresholds           []ReminderThreshold `yaml:"reminderThresholds"`
	ReminderCheckIntervalMinutes int                 `yaml:"reminderCheckIntervalMinutes"`

	UseModalFlow          bool   `yaml:"useModalFlow"`
	MaxOpenTicketsPerUser int    `yaml:"maxOpenTicketsPerUser"`
	MessageCharLimit      int    `yaml:"messageCharLimit"`
	HiddenMessagePrefix   string `yaml:"hiddenMessagePrefix"`

	MinDescriptionLength int `yaml:"minDescriptionLength"`
	MaxDescriptionLength int `yaml:"maxDescriptionLength"`

	UploadTranscriptOnClose bool `yaml:"uploadTranscriptOnClose"`

	AutoCloseEnabled  bool   `yaml:"autoCloseEnabled"`
	AutoCloseDays     int    `yaml:"autoCloseDays"`
	AutoCloseStatusID string `yaml:"autoCloseStatusId"`
	AutoCloseMessage  string `yaml:"autoCloseMessage"`

	// Retention: closed tickets older than the window are deleted
	// outright, transcript included.
	PurgeClosedEnabled        bool `yaml:"purgeClosedEnabled"`
	ClosedTicketRetentionDays int  `yaml:"closedTicketRetentionDays"`

	BlacklistedUserIDs []string `yaml:"blacklistedUserIds"`
	BlacklistMessage   string   `yaml:"blacklistMessage"`
}

// Category is a configured ticket category.
type Category struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	Description string `yaml:"description"`
}

// StatusConfig describes one lifecycle status and its outgoing
// transitions.
type StatusConfig struct {
	ID          string             `yaml:"id"`
	DisplayName string             `yaml:"displayName"`
	Emoji       string             `yaml:"emoji"`
	ClosedState bool               `yaml:"closedState"`
	DefaultOpen bool               `yaml:"defaultOpen"`
	InProgress  bool               `yaml:"inProgress"`
	Transitions []StatusTransition `yaml:"transitions"`
}

// StatusTransition defines an allowed transition out of a status.
type StatusTransition struct {
	TargetStatusID        string `yaml:"targetStatusId"`
	ButtonLabel           string `yaml:"buttonLabel"`
	RequiresClaim         bool   `yaml:"requiresClaim"`
	AutoClaimOnTransition bool   `yaml:"autoClaimOnTransition"`
}

// ReminderThreshold triggers one escalation message after the configured
// number of hours without a response.
type ReminderThreshold struct {
	HoursWithoutResponse int    `yaml:"hoursWithoutResponse"`
	Message              string `yaml:"message"`
	PingStaff            bool   `yaml:"pingStaff"`
}

// LoadRules reads the rules file at path, or returns built-in defaults
// when path is empty.
func LoadRules(path string) (*TicketRules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// DefaultRules returns the built-in rule set: four statuses, three
// categories, and 12h/24h escalation reminders.
func DefaultRules() *TicketRules {
	return &TicketRules{
		Categories: []Category{
			{ID: "general", DisplayName: "General", Description: "General support questions"},
			{ID: "bug_report", DisplayName: "Bug Report", Description: "Report a bug or issue"},
			{ID: "appeal", DisplayName: "Appeal", Description: "Appeal a moderation action"},
		},
		Statuses: []StatusConfig{
			{
				ID: "open", DisplayName: "Open", Emoji: "\U0001F7E2", DefaultOpen: true,
				Transitions: []StatusTransition{
					{TargetStatusID: "in_progress", ButtonLabel: "Start Working", AutoClaimOnTransition: true},
					{TargetStatusID: "closed", ButtonLabel: "Close"},
				},
			},
			{
				ID: "in_progress", DisplayName: "In Progress", Emoji: "\U0001F7E1", InProgress: true,
				Transitions: []StatusTransition{
					{TargetStatusID: "awaiting_response", ButtonLabel: "Await Response", RequiresClaim: true},
					{TargetStatusID: "closed", ButtonLabel: "Close"},
				},
			},
			{
				ID: "awaiting_response", DisplayName: "Awaiting Response", Emoji: "\U0001F7E0",
				Transitions: []StatusTransition{
					{TargetStatusID: "in_progress", ButtonLabel: "Resume"},
					{TargetStatusID: "closed", ButtonLabel: "Close"},
				},
			},
			{
				ID: "closed", DisplayName: "Closed", Emoji: "\U0001F534", ClosedState: true,
				Transitions: []StatusTransition{
					{TargetStatusID: "open", ButtonLabel: "Reopen"},
				},
			},
		},
		UserReplyStatus:  "open",
		StaffReplyStatus: "awaiting_response",
		RemindersEnabled: false,
		ReminderThresholds: []ReminderThreshold{
			{HoursWithoutResponse: 12, Message: "This ticket needs attention.", PingStaff: true},
			{HoursWithoutResponse: 24, Message: "Urgent: This ticket has been waiting for 24 hours!", PingStaff: true},
		},
		ReminderCheckIntervalMinutes: 30,
		UseModalFlow:                 true,
		MaxOpenTicketsPerUser:        3,
		MessageCharLimit:             2000,
		HiddenMessagePrefix:          "?",
		MinDescriptionLength:         10,
		MaxDescriptionLength:         4000,
		UploadTranscriptOnClose:      true,
		AutoCloseEnabled:             false,
		AutoCloseDays:                7,
		AutoCloseStatusID:            "awaiting_response",
		AutoCloseMessage:             "This ticket has been automatically closed due to inactivity.",
		PurgeClosedEnabled:           false,
		ClosedTicketRetentionDays:    30,
		BlacklistMessage:             "You are not permitted to open tickets.",
	}
}

// Validate performs structural checks on the rule set.
func (r *TicketRules) Validate() error {
	if len(r.Statuses) == 0 {
		return fmt.Errorf("rules: at least one status is required")
	}
	ids := make(map[string]struct{}, len(r.Statuses))
	for _, status := range r.Statuses {
		if status.ID == "" {
			return fmt.Errorf("rules: status with empty id")
		}
		if _, dup := ids[status.ID]; dup {
			return fmt.Errorf("rules: duplicate status id %q", status.ID)
		}
		ids[status.ID] = struct{}{}
	}
	for _, status := range r.Statuses {
		for _, transition := range status.Transitions {
			if _, ok := ids[transition.TargetStatusID]; !ok {
				return fmt.Errorf("rules: status %q has transition to unknown status %q",
					status.ID, transition.TargetStatusID)
			}
		}
	}
	if r.MessageCharLimit <= 0 {
		return fmt.Errorf("rules: messageCharLimit must be positive")
	}
	if r.MaxOpenTicketsPerUser <= 0 {
		return fmt.Errorf("rules: maxOpenTicketsPerUser must be positive")
	}
	if r.PurgeClosedEnabled && r.ClosedTicketRetentionDays <= 0 {
		return fmt.Errorf("rules: closedTicketRetentionDays must be positive when purging is enabled")
	}
	return nil
}

// IsUserBlacklisted reports whether userID may not open tickets.
func (r *TicketRules) IsUserBlacklisted(userID string) bool {
	for _, id := range r.BlacklistedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
