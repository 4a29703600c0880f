package moderation

import (
	"database/sql"
	"time"

	"github.com/karlseguin/ccache"
	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/common/pubsub"
)

// Config is the guild's moderation settings row. The mute role is the
// ledger-authoritative marker of an active mute, independent of the
// platform's native timeout.
type Config struct {
	GuildID int64

	CommandPrefix string
	MuteRole      int64
	HTMRole       int64
	ModlogChannel int64
	StaffCategory int64
}

const EvtEvictGuildConfig = "evict_guild_config_cache"

// configs are read on every event, so they are cached locally
var confCache = ccache.New(ccache.Configure().MaxSize(100))

type evictGuildConfigData struct {
	GuildID int64 `json:"guild_id"`
}

func init() {
	pubsub.AddHandler(EvtEvictGuildConfig, handleEvictGuildConfig, evictGuildConfigData{})
}

func handleEvictGuildConfig(evt *pubsub.Event) {
	data := evt.Data.(*evictGuildConfigData)
	confCache.Delete(keyConfig(data.GuildID))
}

func keyConfig(guildID int64) string {
	return "guild_config:" + common.FormatSnowflake(guildID)
}

// GetConfig fetches the guild config from the database, returning defaults
// if no row exists yet.
func GetConfig(guildID int64) (*Config, error) {
	conf := &Config{GuildID: guildID, CommandPrefix: "!"}

	err := common.DB.QueryRow(`SELECT command_prefix, mute_role, htm_role, modlog_channel, staff_category
	FROM guild_configs WHERE guild_id = ?`, guildID).
		Scan(&conf.CommandPrefix, &conf.MuteRole, &conf.HTMRole, &conf.ModlogChannel, &conf.StaffCategory)
	if err != nil && err != sql.ErrNoRows {
		return nil, common.ErrWithCaller(err)
	}

	return conf, nil
}

// SaveConfig upserts the guild config and evicts the cached copy on all
// processes.
func SaveConfig(conf *Config) error {
	_, err := common.DB.Exec(`INSERT INTO guild_configs
	(guild_id, command_prefix, mute_role, htm_role, modlog_channel, staff_category)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (guild_id) DO UPDATE SET
	command_prefix = excluded.command_prefix,
	mute_role = excluded.mute_role,
	htm_role = excluded.htm_role,
	modlog_channel = excluded.modlog_channel,
	staff_category = excluded.staff_category`,
		conf.GuildID, conf.CommandPrefix, conf.MuteRole, conf.HTMRole, conf.ModlogChannel, conf.StaffCategory)
	if err != nil {
		return common.ErrWithCaller(err)
	}

	pubsub.PublishLogErr(EvtEvictGuildConfig, evictGuildConfigData{GuildID: conf.GuildID})
	confCache.Delete(keyConfig(conf.GuildID))
	return nil
}

// CachedGetConfig retrieves the guild config from the local cache,
// fetching on miss.
func CachedGetConfig(guildID int64) (*Config, error) {
	confItem, err := confCache.Fetch(keyConfig(guildID), time.Minute*5, func() (interface{}, error) {
		return GetConfig(guildID)
	})
	if err != nil {
		return nil, err
	}

	return confItem.Value().(*Config), nil
}
