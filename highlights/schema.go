package highlights

import (
	"github.com/ward-gg/wardbot/common"
)

func init() {
	common.RegisterDBSchemas("highlights", DBSchemas...)
}

var DBSchemas = []string{
	`CREATE TABLE IF NOT EXISTS highlight_entries (
	owner_id INTEGER NOT NULL,
	word TEXT NOT NULL,
	added_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (owner_id, word)
);`,
	`CREATE INDEX IF NOT EXISTS idx_highlight_owner ON highlight_entries (owner_id);`,
}
