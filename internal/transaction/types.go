package transaction

import (
	"strings"
)

// Priority orders transactions; lower values are more urgent.
type Priority int

const (
	PriorityUrgent Priority = iota + 1
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

var priorityNames = map[Priority]string{
	PriorityUrgent:     "urgent",
	PriorityHigh:       "high",
	PriorityNormal:     "normal",
	PriorityLow:        "low",
	PriorityBackground: "background",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether p is one of the declared priorities.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a case-insensitive name into a Priority.
func ParsePriority(value string) (Priority, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for p, name := range priorityNames {
		if name == normalized {
			return p, true
		}
	}
	return 0, false
}

// Status represents the processing state of a transaction.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusWaitingSignature Status = "waiting_signature"
	StatusSigned           Status = "signed"
)

// IsTerminal reports whether no further processing happens in this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Type enumerates the kinds of business transactions the engine accepts.
type Type string

const (
	TypeLetterOfIntent    Type = "letter_of_intent"
	TypeAuthorizationForm Type = "authorization_form"
	TypeAmendment         Type = "amendment"
	TypeGeneric           Type = "generic"
)

var allTypes = []Type{TypeLetterOfIntent, TypeAuthorizationForm, TypeAmendment, TypeGeneric}

// ParseType converts a string into a known Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}
