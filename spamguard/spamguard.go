// Package spamguard catches mention-spam bursts from freshly created
// accounts: repeated identical messages, or mention-heavy flooding from
// accounts without a custom avatar.
package spamguard

import (
	"fmt"
	"time"

	"github.com/mediocregopher/radix/v3"
	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/moderation"
)

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Spamguard",
		SysName:  "spamguard",
		Category: common.PluginCategoryModeration,
	}
}

var logger = common.GetPluginLogger(&Plugin{})

func RegisterPlugin() {
	common.RegisterPlugin(&Plugin{})
}

const (
	// only accounts strictly younger than this are eligible
	MaxAccountAge = 24 * time.Hour

	// how many prior channel messages the heuristics look at
	HistoryWindow = 10

	// more than this many matching prior messages trips the flood checks
	FloodThreshold = 3

	// matches further apart than this don't count as a burst
	MaxTimestampSpread = 2 * time.Minute

	// mention flood needs this many mentions per message on average
	MentionRatio = 1.5

	MuteDuration = 30 * time.Minute
)

func RedisKeyRecentlyPunished(userID int64) string {
	return "spamguard_punished:" + common.FormatSnowflake(userID)
}

// Detector evaluates messages against the flood heuristics and applies a
// timed mute through the mute lifecycle manager on a hit.
type Detector struct {
	History bot.MessageHistory
	Admin   bot.MessageAdmin
	Mutes   *moderation.Manager
	ModLog  bot.ModLogSink
}

func (d *Detector) Name() string {
	return "spamguard"
}

func (d *Detector) Evaluate(evt *bot.MessageEvent) (bot.Verdict, error) {
	// only mention-carrying messages from new accounts are interesting,
	// an account exactly 24h old is already too old
	if len(evt.MentionIDs) == 0 || evt.AccountAge() >= MaxAccountAge {
		return bot.VerdictNotApplicable, nil
	}

	history, err := d.History.RecentBefore(evt.ChannelID, evt.ID, HistoryWindow)
	if err != nil {
		return bot.VerdictNotApplicable, err
	}

	// prior messages repeating this exact message from this author
	var repeats []*bot.HistoryMessage
	// all prior messages from this author, and their mention total
	var authored, mentions int
	for _, m := range history {
		if m.AuthorID != evt.AuthorID {
			continue
		}
		authored++
		mentions += m.Mentions

		if m.Content == evt.Content {
			repeats = append(repeats, m)
		}
	}

	isRepeatFlood := len(repeats) > FloodThreshold && spreadUnder(repeats, MaxTimestampSpread)

	// the spread here is computed over the repeat-content match set, not
	// the per-author set
	isMentionFlood := evt.AuthorHasDefaultAvatar &&
		authored > FloodThreshold &&
		float64(mentions) >= float64(authored)*MentionRatio &&
		spreadUnder(repeats, MaxTimestampSpread)

	if !isRepeatFlood && !isMentionFlood {
		return bot.VerdictNotApplicable, nil
	}

	evidence := bot.MessageLink(evt.GuildID, evt.ChannelID, evt.ID)

	if d.recentlyPunished(evt.AuthorID) {
		// a concurrent evaluation already handled this burst, don't
		// double up on mutes and modlog noise. Best effort only.
		return bot.VerdictHandledStop, nil
	}

	if _, err := d.Mutes.Apply(evt.AuthorID, MuteDuration, "spam", common.BotUserID(), evidence); err != nil {
		return bot.VerdictNotApplicable, err
	}

	d.markPunished(evt.AuthorID)

	// clear the burst out of the channel
	toDelete := make([]int64, 0, authored)
	for _, m := range history {
		if m.AuthorID == evt.AuthorID {
			toDelete = append(toDelete, m.ID)
		}
	}
	if len(toDelete) == 1 {
		if err := d.Admin.DeleteMessage(evt.ChannelID, toDelete[0]); err != nil {
			logger.WithError(err).WithField("user", evt.AuthorID).Error("failed deleting spam message")
		}
	} else if len(toDelete) > 1 {
		if err := d.Admin.BulkDeleteMessages(evt.ChannelID, toDelete); err != nil {
			logger.WithError(err).WithField("user", evt.AuthorID).Error("failed deleting spam messages")
		}
	}

	d.ModLog.Record(common.BotUserID(), evt.AuthorID, "Spam detected",
		fmt.Sprintf("muted for %s for spamming", common.HumanizeDuration(MuteDuration)), evidence)

	return bot.VerdictHandledStop, nil
}

// spreadUnder reports whether the oldest and newest timestamps in the set
// are within the window. Fewer than two messages never count as a burst.
func spreadUnder(msgs []*bot.HistoryMessage, window time.Duration) bool {
	if len(msgs) < 2 {
		return false
	}

	min, max := msgs[0].Timestamp, msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.Before(min) {
			min = m.Timestamp
		}
		if m.Timestamp.After(max) {
			max = m.Timestamp
		}
	}

	return max.Sub(min) < window
}

func (d *Detector) recentlyPunished(userID int64) bool {
	if common.RedisPool == nil {
		return false
	}

	var n int
	err := common.RedisPool.Do(radix.Cmd(&n, "EXISTS", RedisKeyRecentlyPunished(userID)))
	if err != nil {
		logger.WithError(err).Debug("failed checking punish marker")
		return false
	}

	return n > 0
}

func (d *Detector) markPunished(userID int64) {
	if common.RedisPool == nil {
		return
	}

	err := common.RedisPool.Do(radix.Cmd(nil, "SETEX", RedisKeyRecentlyPunished(userID), "60", "1"))
	if err != nil {
		logger.WithError(err).Debug("failed setting punish marker")
	}
}
