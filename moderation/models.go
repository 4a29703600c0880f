package moderation

import (
	"time"
)

type SanctionKind string

const (
	KindWarn SanctionKind = "warn"
	KindMute SanctionKind = "mute"
	KindKick SanctionKind = "kick"
	KindBan  SanctionKind = "ban"
)

// SanctionRecord is one punitive action recorded against a user. Records
// are immutable after creation except for MuteActive, which flips from
// true to false exactly once when the mute ends.
type SanctionRecord struct {
	ID          string
	ActorID     int64
	TargetID    int64
	Kind        SanctionKind
	Reason      string
	CreatedAt   time.Time
	EvidenceRef string

	// Only meaningful for KindMute
	MuteStart  time.Time
	MuteEnd    time.Time
	MuteActive bool
}

// Annotation categories written by the automated pipeline.
const (
	AnnotationBlocklistViolation = "blocklist violation"
	AnnotationMuteEvasion        = "mute evasion detected"
	AnnotationHTMEvasion         = "htm evasion detected"
)

// Annotation is an informational, non-punitive note against a user. Same
// ledger as sanctions but with no enforcement effect.
type Annotation struct {
	ID        string
	ActorID   int64
	TargetID  int64
	NoteText  string
	CreatedAt time.Time
	Category  string
}
