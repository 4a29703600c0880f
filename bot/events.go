package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// discord snowflake epoch, 2015-01-01
const snowflakeEpochMs = 1420070400000

func init() {
	snowflake.Epoch = snowflakeEpochMs
}

// SnowflakeCreated extracts the creation time embedded in a snowflake id.
func SnowflakeCreated(id int64) time.Time {
	return time.UnixMilli(snowflake.ParseInt64(id).Time())
}

// MessageEvent is an inbound chat message to be run through the detector
// pipeline. Ephemeral, never persisted.
type MessageEvent struct {
	ID        int64
	AuthorID  int64
	ChannelID int64
	GuildID   int64
	Content   string

	AttachmentURLs []string
	MentionIDs     []int64

	AuthorCreated          time.Time
	AuthorHasDefaultAvatar bool

	Timestamp time.Time
	Edited    bool
}

// AccountAge is the age of the author's account at the time of the event.
// Falls back to the author id snowflake when the gateway didn't provide a
// creation time.
func (m *MessageEvent) AccountAge() time.Duration {
	created := m.AuthorCreated
	if created.IsZero() {
		created = SnowflakeCreated(m.AuthorID)
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return ts.Sub(created)
}

// MessageLink builds the canonical web link to a message, used as the
// evidence reference on automated sanctions.
func MessageLink(guildID, channelID, messageID int64) string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", guildID, channelID, messageID)
}

// MemberJoinEvent is fired when a user (re)joins the guild.
type MemberJoinEvent struct {
	UserID  int64
	GuildID int64
}
