package models

import "time"

// Form is the text form a pattern matched against.
type Form string

const (
	FormRaw        Form = "raw"
	FormNormalized Form = "normalized"
)

// Verdict is the detector result for one text.
type Verdict struct {
	Matched bool   `json:"matched"`
	Index   int    `json:"index"`
	Pattern string `json:"pattern,omitempty"`
	Form    Form   `json:"form,omitempty"`
}

// Escalation is the ledger decision for one violation.
type Escalation struct {
	Count      int  `json:"count"`
	Max        int  `json:"max"`
	ShouldMute bool `json:"should_mute"`
}

// Outcome describes what happened to one inbound message.
type Outcome struct {
	Verdict    Verdict
	Escalation Escalation
	Deleted    bool
	Muted      bool
}

// Permission is a bit set of permission denials for a role.
type Permission uint8

const (
	DenySendMessages Permission = 1 << iota
	DenySpeak
)

// MuteDenials are the denials carried by the mute role.
const MuteDenials = DenySendMessages | DenySpeak

// Has reports whether all bits of p2 are set.
func (p Permission) Has(p2 Permission) bool {
	return p&p2 == p2
}

// AlertKind classifies moderator alerts.
type AlertKind string

const (
	AlertMute               AlertKind = "mute"
	AlertEnforcementFailure AlertKind = "enforcement_failure"
)

// Alert is a moderator-visible notification.
type Alert struct {
	ID      string
	Kind    AlertKind
	GuildID string
	UserID  string
	Text    string
	At      time.Time
}
