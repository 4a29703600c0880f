package bot

import (
	"time"

	"emperror.dev/errors"
)

// The host chat platform is only reachable through these interfaces. The
// core never talks to the gateway or REST api directly, which keeps every
// detector testable with in-memory doubles.

const (
	// ErrDMsDisabled is returned by DirectNotifier implementations when the
	// recipient disallows private messages.
	ErrDMsDisabled = errors.Sentinel("user disallows direct messages")
)

// PermissionOracle answers channel visibility and staff-membership queries.
type PermissionOracle interface {
	CanRead(userID, channelID int64) (bool, error)
	IsStaff(userID int64) (bool, error)
}

// HistoryMessage is a prior message as returned by the history provider.
type HistoryMessage struct {
	ID        int64
	AuthorID  int64
	Content   string
	Mentions  int
	Timestamp time.Time
}

// MessageHistory fetches the messages preceding a given message in a
// channel, newest first.
type MessageHistory interface {
	RecentBefore(channelID, beforeID int64, limit int) ([]*HistoryMessage, error)
}

// DirectNotifier delivers private messages to users.
type DirectNotifier interface {
	SendDM(userID int64, content string) error
}

// Suppressor exposes the platform's enforcement primitives: the native
// timed communication suppression (capped by the platform at a maximum
// duration from now) and role assignment, which is uncapped.
type Suppressor interface {
	SuppressUntil(userID int64, until time.Time) error
	AddRole(userID, roleID int64) error
	RemoveRole(userID, roleID int64) error
}

// ChannelOracle describes channel topology: whether a channel is a thread
// and which category it hangs under.
type ChannelOracle interface {
	IsThread(channelID int64) (bool, error)
	ParentCategory(channelID int64) (int64, error)
}

// MessageAdmin deletes offending messages.
type MessageAdmin interface {
	DeleteMessage(channelID, messageID int64) error
	BulkDeleteMessages(channelID int64, messageIDs []int64) error
}

// ModLogSink receives moderation log entries, fire and forget.
type ModLogSink interface {
	Record(actorID, targetID int64, action, reason, evidenceRef string)
}
