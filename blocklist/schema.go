package blocklist

import (
	"github.com/ward-gg/wardbot/common"
)

func init() {
	common.RegisterDBSchemas("blocklist", DBSchemas...)
}

var DBSchemas = []string{
	`CREATE TABLE IF NOT EXISTS blocklist_entries (
	pattern TEXT PRIMARY KEY,
	added_by INTEGER NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL DEFAULT 0
);`,
}
