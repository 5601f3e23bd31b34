package models

import "time"

// Action is a user interaction recorded against a grant
type Action string

const (
	ActionSaved   Action = "saved"
	ActionApplied Action = "applied"
	ActionIgnored Action = "ignored"
)

// Actions lists every valid action
var Actions = []Action{ActionSaved, ActionApplied, ActionIgnored}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionSaved, ActionApplied, ActionIgnored:
		return true
	}
	return false
}

// Interaction is a recorded action as returned by the interactions endpoint
type Interaction struct {
	GrantID   string    `json:"grant_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// InteractionRequest is the body of the write-style interaction call
type InteractionRequest struct {
	GrantID string `json:"grant_id"`
	Action  Action `json:"action"`
}
