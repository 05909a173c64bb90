// Package audit captures key onboarding actions as events and fans them
// out to pluggable sinks. Events are transport-agnostic so the same
// trail can land in memory for tests or in Kafka for production.
package audit

import (
	"context"
	"time"
)

// Action names the thing that happened.
type Action string

const (
	ActionOnboardingStarted   Action = "onboarding_started"
	ActionMemberRegistered    Action = "member_registered"
	ActionMemberPartialSave   Action = "member_partial_persist"
	ActionMemberStatusChanged Action = "member_status_changed"
)

// Event is a single audit trail entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	EntryCode string    `json:"entry_code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives published events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
