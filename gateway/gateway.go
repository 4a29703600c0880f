// Package gateway connects the moderation core to discord. All the
// collaborator interfaces the detectors depend on are implemented here on
// top of a discordgo session; nothing below this package knows about the
// wire protocol.
package gateway

import (
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/ward-gg/wardbot/bot"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/common/config"
	"github.com/ward-gg/wardbot/moderation"
)

var (
	logger = common.GetFixedPrefixLogger("gateway")

	ConfBotToken  = config.RegisterOption("wardbot.bot.token", "Discord bot token", "")
	ConfGuildID   = config.RegisterOption("wardbot.bot.guild_id", "The guild the bot moderates", 0)
	ConfStaffRole = config.RegisterOption("wardbot.bot.staff_role", "Role treated as staff for blocklist management exemption", 0)
)

// Bot owns the gateway connection and the dispatcher fed from it.
type Bot struct {
	Session    *discordgo.Session
	Dispatcher *bot.Dispatcher

	guildID   int64
	staffRole int64
}

func New(dispatcher *bot.Dispatcher) (*Bot, error) {
	token := ConfBotToken.GetString()
	if token == "" {
		return nil, errors.New("no bot token configured")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.WithMessage(err, "gateway: create session")
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	b := &Bot{
		Session:    session,
		Dispatcher: dispatcher,
		guildID:    int64(ConfGuildID.GetInt()),
		staffRole:  int64(ConfStaffRole.GetInt()),
	}

	session.AddHandler(b.handleMessageCreate)
	session.AddHandler(b.handleMessageUpdate)
	session.AddHandler(b.handleMemberAdd)

	return b, nil
}

func (b *Bot) Open() error {
	return b.Session.Open()
}

func (b *Bot) Close() error {
	return b.Session.Close()
}

func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	evt := b.messageEvent(m.Message)
	// each event runs on its own goroutine, detectors only share the
	// caches and the ledger
	go b.Dispatcher.DispatchMessage(evt)
}

func (b *Bot) handleMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	evt := b.messageEvent(m.Message)
	evt.Edited = true
	go b.Dispatcher.DispatchMessage(evt)
}

func (b *Bot) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil {
		return
	}

	evt := &bot.MemberJoinEvent{
		UserID:  parseID(m.User.ID),
		GuildID: parseID(m.GuildID),
	}
	go b.Dispatcher.DispatchJoin(evt)
}

func (b *Bot) messageEvent(m *discordgo.Message) *bot.MessageEvent {
	evt := &bot.MessageEvent{
		ID:        parseID(m.ID),
		AuthorID:  parseID(m.Author.ID),
		ChannelID: parseID(m.ChannelID),
		GuildID:   parseID(m.GuildID),
		Content:   m.Content,
		Timestamp: m.Timestamp,

		AuthorHasDefaultAvatar: m.Author.Avatar == "",
	}

	evt.AuthorCreated = bot.SnowflakeCreated(evt.AuthorID)

	for _, mention := range m.Mentions {
		evt.MentionIDs = append(evt.MentionIDs, parseID(mention.ID))
	}
	for _, attachment := range m.Attachments {
		evt.AttachmentURLs = append(evt.AttachmentURLs, attachment.URL)
	}

	return evt
}

func parseID(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Collaborators returns the discord-backed implementations of every
// interface the core consumes.
func (b *Bot) Collaborators() *Collaborators {
	return &Collaborators{bot: b}
}

// Collaborators implements bot.PermissionOracle, bot.ChannelOracle,
// bot.MessageHistory, bot.DirectNotifier, bot.Suppressor,
// bot.MessageAdmin and bot.ModLogSink against the live session.
type Collaborators struct {
	bot *Bot
}

func (c *Collaborators) CanRead(userID, channelID int64) (bool, error) {
	perms, err := c.bot.Session.UserChannelPermissions(formatID(userID), formatID(channelID))
	if err != nil {
		return false, errors.WithMessage(err, "gateway: channel permissions")
	}

	return perms&discordgo.PermissionViewChannel != 0, nil
}

func (c *Collaborators) IsStaff(userID int64) (bool, error) {
	if c.bot.staffRole == 0 {
		return false, nil
	}

	member, err := c.bot.Session.GuildMember(formatID(c.bot.guildID), formatID(userID))
	if err != nil {
		return false, errors.WithMessage(err, "gateway: fetch member")
	}

	return common.ContainsStringSlice(member.Roles, formatID(c.bot.staffRole)), nil
}

func (c *Collaborators) IsThread(channelID int64) (bool, error) {
	ch, err := c.bot.Session.Channel(formatID(channelID))
	if err != nil {
		return false, errors.WithMessage(err, "gateway: fetch channel")
	}

	switch ch.Type {
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		return true, nil
	}

	return false, nil
}

func (c *Collaborators) ParentCategory(channelID int64) (int64, error) {
	ch, err := c.bot.Session.Channel(formatID(channelID))
	if err != nil {
		return 0, errors.WithMessage(err, "gateway: fetch channel")
	}

	return parseID(ch.ParentID), nil
}

func (c *Collaborators) RecentBefore(channelID, beforeID int64, limit int) ([]*bot.HistoryMessage, error) {
	msgs, err := c.bot.Session.ChannelMessages(formatID(channelID), limit, formatID(beforeID), "", "")
	if err != nil {
		return nil, errors.WithMessage(err, "gateway: channel messages")
	}

	out := make([]*bot.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		out = append(out, &bot.HistoryMessage{
			ID:        parseID(m.ID),
			AuthorID:  parseID(m.Author.ID),
			Content:   m.Content,
			Mentions:  len(m.Mentions),
			Timestamp: m.Timestamp,
		})
	}

	return out, nil
}

func (c *Collaborators) SendDM(userID int64, content string) error {
	channel, err := c.bot.Session.UserChannelCreate(formatID(userID))
	if err != nil {
		return errors.WithMessage(err, "gateway: create dm channel")
	}

	_, err = c.bot.Session.ChannelMessageSend(channel.ID, content)
	if isDiscordErr(err, discordgo.ErrCodeCannotSendMessagesToThisUser) {
		return bot.ErrDMsDisabled
	}

	return err
}

func (c *Collaborators) SuppressUntil(userID int64, until time.Time) error {
	return c.bot.Session.GuildMemberTimeout(formatID(c.bot.guildID), formatID(userID), &until)
}

func (c *Collaborators) AddRole(userID, roleID int64) error {
	return c.bot.Session.GuildMemberRoleAdd(formatID(c.bot.guildID), formatID(userID), formatID(roleID))
}

func (c *Collaborators) RemoveRole(userID, roleID int64) error {
	return c.bot.Session.GuildMemberRoleRemove(formatID(c.bot.guildID), formatID(userID), formatID(roleID))
}

func (c *Collaborators) DeleteMessage(channelID, messageID int64) error {
	return c.bot.Session.ChannelMessageDelete(formatID(channelID), formatID(messageID))
}

func (c *Collaborators) BulkDeleteMessages(channelID int64, messageIDs []int64) error {
	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = formatID(id)
	}

	return c.bot.Session.ChannelMessagesBulkDelete(formatID(channelID), ids)
}

// Record posts a moderation log line to the configured modlog channel,
// fire and forget.
func (c *Collaborators) Record(actorID, targetID int64, action, reason, evidenceRef string) {
	conf, err := moderation.CachedGetConfig(c.bot.guildID)
	if err != nil || conf.ModlogChannel == 0 {
		return
	}

	line := action + " <@" + formatID(targetID) + ">"
	if actorID != 0 {
		line += " by <@" + formatID(actorID) + ">"
	}
	if reason != "" {
		line += "\n**Reason:** " + reason
	}
	if evidenceRef != "" {
		line += "\n" + evidenceRef
	}

	if _, err := c.bot.Session.ChannelMessageSend(formatID(conf.ModlogChannel), line); err != nil {
		logger.WithError(err).Error("failed posting modlog entry")
	}
}

func isDiscordErr(err error, code int) bool {
	if err == nil {
		return false
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		return rest.Message.Code == code
	}

	return false
}
