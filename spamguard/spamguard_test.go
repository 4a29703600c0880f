package spamguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/moderation"
)

type fakeHistory struct {
	messages []*bot.HistoryMessage
	err      error
}

func (h *fakeHistory) RecentBefore(channelID, beforeID int64, limit int) ([]*bot.HistoryMessage, error) {
	if h.err != nil {
		return nil, h.err
	}
	if len(h.messages) > limit {
		return h.messages[:limit], nil
	}
	return h.messages, nil
}

type fakeAdmin struct {
	deleted []int64
}

func (a *fakeAdmin) DeleteMessage(channelID, messageID int64) error {
	a.deleted = append(a.deleted, messageID)
	return nil
}

func (a *fakeAdmin) BulkDeleteMessages(channelID int64, messageIDs []int64) error {
	a.deleted = append(a.deleted, messageIDs...)
	return nil
}

type fakeSuppressor struct {
	roles      map[int64][]int64
	suppressed map[int64]time.Time
}

func newFakeSuppressor() *fakeSuppressor {
	return &fakeSuppressor{roles: make(map[int64][]int64), suppressed: make(map[int64]time.Time)}
}

func (s *fakeSuppressor) SuppressUntil(userID int64, until time.Time) error {
	s.suppressed[userID] = until
	return nil
}

func (s *fakeSuppressor) AddRole(userID, roleID int64) error {
	s.roles[userID] = append(s.roles[userID], roleID)
	return nil
}

func (s *fakeSuppressor) RemoveRole(userID, roleID int64) error { return nil }

type fakeNotifier struct{}

func (n *fakeNotifier) SendDM(userID int64, content string) error { return nil }

type fakeModLog struct {
	actions []string
}

func (m *fakeModLog) Record(actorID, targetID int64, action, reason, evidenceRef string) {
	m.actions = append(m.actions, action)
}

const testMuteRole = int64(5000)

func testConfig() (*moderation.Config, error) {
	return &moderation.Config{GuildID: 1, CommandPrefix: "!", MuteRole: testMuteRole}, nil
}

func newTestDetector(t *testing.T, history []*bot.HistoryMessage) (*Detector, *fakeAdmin, *fakeSuppressor, *fakeModLog) {
	t.Helper()
	require.NoError(t, common.InitTest())

	admin := &fakeAdmin{}
	sup := newFakeSuppressor()
	ml := &fakeModLog{}
	mutes := moderation.NewManager(moderation.NewLedger(common.DB), sup, &fakeNotifier{}, ml, testConfig)

	d := &Detector{
		History: &fakeHistory{messages: history},
		Admin:   admin,
		Mutes:   mutes,
		ModLog:  ml,
	}
	return d, admin, sup, ml
}

// burst builds n prior messages from the author, identical content and
// mention counts, spaced a second apart.
func burst(author int64, content string, mentionsEach, n int, base time.Time) []*bot.HistoryMessage {
	out := make([]*bot.HistoryMessage, n)
	for i := 0; i < n; i++ {
		out[i] = &bot.HistoryMessage{
			ID:        int64(1000 + i),
			AuthorID:  author,
			Content:   content,
			Mentions:  mentionsEach,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func newAccountEvent(content string, mentions int) *bot.MessageEvent {
	now := time.Now()
	return &bot.MessageEvent{
		ID: 2000, AuthorID: 100, ChannelID: 20, GuildID: 1,
		Content:       content,
		MentionIDs:    make([]int64, mentions),
		AuthorCreated: now.Add(-time.Hour),
		Timestamp:     now,
	}
}

func TestNoMentionsNotApplicable(t *testing.T) {
	d, _, _, _ := newTestDetector(t, burst(100, "hi @x", 1, 9, time.Now()))

	evt := newAccountEvent("hi @x", 0)
	verdict, err := d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestAccountAgeBoundary(t *testing.T) {
	d, _, _, _ := newTestDetector(t, burst(100, "hi @x", 1, 9, time.Now()))

	now := time.Now()

	// exactly 24 hours old is no longer eligible
	evt := newAccountEvent("hi @x", 1)
	evt.AuthorCreated = now.Add(-MaxAccountAge)
	evt.Timestamp = now
	verdict, err := d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)

	// one second short of 24 hours still is
	evt = newAccountEvent("hi @x", 1)
	evt.AuthorCreated = now.Add(-MaxAccountAge + time.Second)
	evt.Timestamp = now
	verdict, err = d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictHandledStop, verdict)
}

func TestRepeatFloodThreshold(t *testing.T) {
	// exactly 3 repeats within the window doesn't trip
	d, _, _, _ := newTestDetector(t, burst(100, "buy now @here", 1, 3, time.Now()))
	verdict, err := d.Evaluate(newAccountEvent("buy now @here", 1))
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)

	// the 4th repeat does
	d, _, sup, _ := newTestDetector(t, burst(100, "buy now @here", 1, 4, time.Now()))
	verdict, err = d.Evaluate(newAccountEvent("buy now @here", 1))
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictHandledStop, verdict)
	assert.Contains(t, sup.roles[100], testMuteRole)
}

func TestRepeatFloodSpreadTooWide(t *testing.T) {
	// 4 repeats but spread over 15 minutes, not a burst
	history := burst(100, "buy now @here", 1, 4, time.Now().Add(-15*time.Minute))
	history[3].Timestamp = time.Now()

	d, _, _, _ := newTestDetector(t, history)
	verdict, err := d.Evaluate(newAccountEvent("buy now @here", 1))
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestRepeatFloodIgnoresOtherAuthors(t *testing.T) {
	// the burst belongs to someone else
	d, _, _, _ := newTestDetector(t, burst(999, "buy now @here", 1, 6, time.Now()))
	verdict, err := d.Evaluate(newAccountEvent("buy now @here", 1))
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestMentionFlood(t *testing.T) {
	// 4 prior mention-heavy messages from a default-avatar account, only
	// 2 of them repeating the current content so the repeat check alone
	// wouldn't trip
	now := time.Now()
	history := burst(100, "hey @a @b", 2, 2, now)
	history = append(history,
		&bot.HistoryMessage{ID: 1100, AuthorID: 100, Content: "join @a @b", Mentions: 2, Timestamp: now.Add(2 * time.Second)},
		&bot.HistoryMessage{ID: 1101, AuthorID: 100, Content: "free @a @b", Mentions: 2, Timestamp: now.Add(3 * time.Second)},
	)

	d, _, sup, _ := newTestDetector(t, history)

	evt := newAccountEvent("hey @a @b", 2)
	evt.AuthorHasDefaultAvatar = true
	verdict, err := d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictHandledStop, verdict)
	assert.Contains(t, sup.roles[100], testMuteRole)

	// the same history from an account with a custom avatar passes
	d, _, _, _ = newTestDetector(t, history)
	evt = newAccountEvent("hey @a @b", 2)
	verdict, err = d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestMentionFloodNeedsDefaultAvatar(t *testing.T) {
	// mention ratio alone isn't enough with just 3 repeats
	d, _, _, _ := newTestDetector(t, burst(100, "hey @a @b", 2, 3, time.Now()))

	evt := newAccountEvent("hey @a @b", 2)
	evt.AuthorHasDefaultAvatar = true
	verdict, err := d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)

	// enough volume but a custom avatar, ratio check doesn't apply
	d, _, _, _ = newTestDetector(t, burst(100, "unique one", 2, 4, time.Now()))
	evt = newAccountEvent("different content", 2)
	evt.AuthorHasDefaultAvatar = false
	verdict, err = d.Evaluate(evt)
	require.NoError(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestFloodEffects(t *testing.T) {
	history := burst(100, "buy now @here", 1, 5, time.Now())
	// unrelated message from someone else mixed into the window
	history = append(history, &bot.HistoryMessage{
		ID: 1500, AuthorID: 999, Content: "hello", Timestamp: time.Now(),
	})

	d, admin, sup, ml := newTestDetector(t, history)

	evt := newAccountEvent("buy now @here", 1)
	verdict, err := d.Evaluate(evt)
	require.NoError(t, err)
	require.Equal(t, bot.VerdictHandledStop, verdict)

	// author muted for 30 minutes
	active, err := d.Mutes.Ledger().ActiveMute(100)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.WithinDuration(t, time.Now().Add(MuteDuration), active.MuteEnd, 5*time.Second)
	assert.Contains(t, sup.roles[100], testMuteRole)

	// only the author's window messages are removed
	assert.ElementsMatch(t, []int64{1000, 1001, 1002, 1003, 1004}, admin.deleted)

	// one mute entry, one spam entry
	assert.Contains(t, ml.actions, "Spam detected")
}

func TestHistoryErrorNotApplicable(t *testing.T) {
	d, _, _, _ := newTestDetector(t, nil)
	d.History = &fakeHistory{err: assert.AnError}

	verdict, err := d.Evaluate(newAccountEvent("hi @x", 1))
	require.Error(t, err)
	assert.Equal(t, bot.VerdictNotApplicable, verdict)
}

func TestSpreadUnder(t *testing.T) {
	base := time.Now()
	msgs := []*bot.HistoryMessage{
		{Timestamp: base},
		{Timestamp: base.Add(90 * time.Second)},
	}
	assert.True(t, spreadUnder(msgs, MaxTimestampSpread))

	msgs[1].Timestamp = base.Add(2 * time.Minute)
	assert.False(t, spreadUnder(msgs, MaxTimestampSpread), "the window bound is exclusive")

	assert.False(t, spreadUnder(msgs[:1], MaxTimestampSpread), "a single message is never a burst")
}
