package queue

import (
	"fmt"
	"strings"
)

const maxJobRecipients = 1000

// Mode selects the payload encoding a send job is relayed with.
type Mode string

const (
	ModeJSON      Mode = "JSON"
	ModePlainText Mode = "PLAIN_TEXT"
)

func (m Mode) String() string { return string(m) }

func (m Mode) IsValid() bool {
	switch m {
	case ModeJSON, ModePlainText:
		return true
	}
	return false
}

func ParseModeFromString(s string) (Mode, error) {
	mode := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q", s)
	}
	return mode, nil
}

// Priority orders jobs within the work queue and doubles as the
// message's delivery priority field.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	priority := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !priority.IsValid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return priority, nil
}

// SendJob is the broker payload for one relayed send.
type SendJob struct {
	ID            string   `json:"id"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Mode          Mode     `json:"mode"`
	Priority      Priority `json:"priority"`

	To              string   `json:"to,omitempty"`
	RegistrationIDs []string `json:"registrationIds,omitempty"`

	Data         map[string]string `json:"data,omitempty"`
	Notification map[string]string `json:"notification,omitempty"`

	CollapseKey       string `json:"collapseKey,omitempty"`
	TimeToLiveSeconds *int64 `json:"timeToLiveSeconds,omitempty"`
	DryRun            bool   `json:"dryRun,omitempty"`
}

func (j SendJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	if !j.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q", j.Mode)
	}
	if !j.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", j.Priority)
	}
	if strings.TrimSpace(j.To) == "" && len(j.RegistrationIDs) == 0 {
		return fmt.Errorf("job addresses no recipients")
	}
	if len(j.RegistrationIDs) > maxJobRecipients {
		return fmt.Errorf("job addresses %d recipients, limit is %d", len(j.RegistrationIDs), maxJobRecipients)
	}
	if j.Mode == ModePlainText && len(j.RegistrationIDs) > 0 {
		return fmt.Errorf("plain-text jobs address a single recipient via to")
	}
	return nil
}

// Recipients returns the ids the job addresses, mirroring how the
// provider reports results: the registration id list, or the single
// to target.
func (j SendJob) Recipients() []string {
	if len(j.RegistrationIDs) > 0 {
		return j.RegistrationIDs
	}
	if strings.TrimSpace(j.To) != "" {
		return []string{j.To}
	}
	return nil
}
