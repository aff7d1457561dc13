package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRulesValidate(t *testing.T) {
	rules := DefaultRules()
	if err := rules.Validate(); err != nil {
		t.Fatalf("default rules must validate: %v", err)
	}
	if rules.MessageCharLimit != 2000 {
		t.Fatalf("message char limit = %d, want 2000", rules.MessageCharLimit)
	}
	if rules.HiddenMessagePrefix != "?" {
		t.Fatalf("hidden prefix = %q, want ?", rules.HiddenMessagePrefix)
	}
	if rules.MaxOpenTicketsPerUser != 3 {
		t.Fatalf("max open tickets = %d, want 3", rules.MaxOpenTicketsPerUser)
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	content := `
forumChannelId: "123"
ticketRoleId: "456"
categories:
  - id: billing
    displayName: Billing
statuses:
  - id: open
    displayName: Open
    defaultOpen: true
    transitions:
      - targetStatusId: done
        buttonLabel: Resolve
  - id: done
    displayName: Done
    closedState: true
maxOpenTicketsPerUser: 5
messageCharLimit: 1500
remindersEnabled: true
reminderThresholds:
  - hoursWithoutResponse: 6
    message: "check this ticket"
    pingStaff: true
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.ForumChannelID != "123" || rules.TicketRoleID != "456" {
		t.Fatalf("ids not parsed: %+v", rules)
	}
	if rules.MaxOpenTicketsPerUser != 5 || rules.MessageCharLimit != 1500 {
		t.Fatalf("limits not parsed: %+v", rules)
	}
	if len(rules.Statuses) != 2 || !rules.Statuses[1].ClosedState {
		t.Fatalf("statuses not parsed: %+v", rules.Statuses)
	}
	if len(rules.ReminderThresholds) != 1 || rules.ReminderThresholds[0].HoursWithoutResponse != 6 {
		t.Fatalf("thresholds not parsed: %+v", rules.ReminderThresholds)
	}
	// Fields absent from the file keep their defaults.
	if rules.MinDescriptionLength != 10 || rules.MaxDescriptionLength != 4000 {
		t.Fatalf("defaults not preserved: %d..%d", rules.MinDescriptionLength, rules.MaxDescriptionLength)
	}
}

func TestLoadRulesRejectsUnknownTransitionTarget(t *testing.T) {
	content := `
statuses:
  - id: open
    displayName: Open
    transitions:
      - targetStatusId: missing
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	if _, err := LoadRules(path); err == nil {
		t.Fatalf("transition to an unknown status must be rejected")
	}
}

func TestIsUserBlacklisted(t *testing.T) {
	rules := DefaultRules()
	rules.BlacklistedUserIDs = []string{"bad-1", "bad-2"}

	if !rules.IsUserBlacklisted("bad-1") {
		t.Fatalf("bad-1 must be blacklisted")
	}
	if rules.IsUserBlacklisted("good-1") {
		t.Fatalf("good-1 must not be blacklisted")
	}
}
