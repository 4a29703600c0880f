package moderation

import (
	"github.com/ward-gg/wardbot/common"
)

func init() {
	common.RegisterDBSchemas("moderation", DBSchemas...)
}

var DBSchemas = []string{
	`CREATE TABLE IF NOT EXISTS sanctions (
	id TEXT PRIMARY KEY,
	actor_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	evidence_ref TEXT NOT NULL DEFAULT '',

	mute_start INTEGER NOT NULL DEFAULT 0,
	mute_end INTEGER NOT NULL DEFAULT 0,
	mute_active INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE INDEX IF NOT EXISTS idx_sanctions_target ON sanctions (target_id, kind);`,
	`CREATE INDEX IF NOT EXISTS idx_sanctions_active_mutes ON sanctions (target_id) WHERE mute_active = 1;`,

	`CREATE TABLE IF NOT EXISTS annotations (
	id TEXT PRIMARY KEY,
	actor_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	note_text TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	category TEXT NOT NULL DEFAULT ''
);`,
	`CREATE INDEX IF NOT EXISTS idx_annotations_target ON annotations (target_id);`,

	`CREATE TABLE IF NOT EXISTS htm_users (
	user_id INTEGER PRIMARY KEY,
	set_at INTEGER NOT NULL
);`,

	`CREATE TABLE IF NOT EXISTS guild_configs (
	guild_id INTEGER PRIMARY KEY,
	command_prefix TEXT NOT NULL DEFAULT '!',
	mute_role INTEGER NOT NULL DEFAULT 0,
	htm_role INTEGER NOT NULL DEFAULT 0,
	modlog_channel INTEGER NOT NULL DEFAULT 0,
	staff_category INTEGER NOT NULL DEFAULT 0
);`,
}
