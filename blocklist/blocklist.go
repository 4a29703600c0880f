// Package blocklist deletes messages matching a moderator-curated set of
// banned patterns. The patterns are compiled into one combined regular
// expression which is cached and lazily rebuilt whenever the set changes.
package blocklist

import (
	"regexp"
	"strings"
	"time"

	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/common/cachedset"
	"github.com/ward-gg/wardbot/common/pubsub"
)

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Blocklist",
		SysName:  "blocklist",
		Category: common.PluginCategoryModeration,
	}
}

var logger = common.GetPluginLogger(&Plugin{})

func RegisterPlugin() {
	common.RegisterPlugin(&Plugin{})
}

const EvtEvictBlocklist = "evict_blocklist_cache"

var compiledSlot = cachedset.NewSlot("blocklist_matcher", buildMatcher)

func init() {
	pubsub.AddHandler(EvtEvictBlocklist, func(evt *pubsub.Event) {
		compiledSlot.Invalidate()
	}, nil)
}

// invisible code points commonly used to sneak words past the matcher
var zeroWidthReplacer = strings.NewReplacer(
	"​", "", // zero width space
	"‌", "", // zero width non-joiner
	"‍", "", // zero width joiner
	"‎", "", // left-to-right mark
	"‏", "", // right-to-left mark
)

// Normalize strips the invisible code points from message text before
// matching.
func Normalize(text string) string {
	return zeroWidthReplacer.Replace(text)
}

// AddPattern validates and inserts a banned pattern, then invalidates the
// compiled matcher everywhere.
func AddPattern(pattern string, addedBy int64) error {
	if strings.TrimSpace(pattern) == "" {
		return common.NewUserError("blocklist pattern can't be empty")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return common.NewUserError("invalid blocklist pattern: " + err.Error())
	}

	_, err := common.DB.Exec(`INSERT INTO blocklist_entries (pattern, added_by, added_at) VALUES (?, ?, ?)
	ON CONFLICT (pattern) DO NOTHING`, pattern, addedBy, time.Now().Unix())
	if err != nil {
		return common.ErrWithCaller(err)
	}

	invalidate()
	return nil
}

// RemovePattern deletes a pattern from the set and invalidates the
// compiled matcher everywhere.
func RemovePattern(pattern string) error {
	res, err := common.DB.Exec(`DELETE FROM blocklist_entries WHERE pattern = ?`, pattern)
	if err != nil {
		return common.ErrWithCaller(err)
	}

	if n, _ := res.RowsAffected(); n < 1 {
		return common.NewUserError("pattern is not on the blocklist")
	}

	invalidate()
	return nil
}

// Patterns returns the current pattern set, insertion order not meaningful.
func Patterns() ([]string, error) {
	rows, err := common.DB.Query(`SELECT pattern FROM blocklist_entries`)
	if err != nil {
		return nil, common.ErrWithCaller(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, common.ErrWithCaller(err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func invalidate() {
	compiledSlot.Invalidate()
	if common.RedisPool != nil {
		pubsub.PublishLogErr(EvtEvictBlocklist, nil)
	}
}

// buildMatcher combines all patterns into a single alternation. A nil
// matcher means the blocklist is empty.
func buildMatcher() (*regexp.Regexp, error) {
	patterns, err := Patterns()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	grouped := make([]string, len(patterns))
	for i, p := range patterns {
		grouped[i] = "(?:" + p + ")"
	}

	return regexp.Compile("(?i)" + strings.Join(grouped, "|"))
}

// Check normalizes the text and runs it against the cached combined
// matcher, returning the offending portion and whether anything matched.
func Check(text string) (string, bool, error) {
	matcher, err := compiledSlot.Get()
	if err != nil {
		return "", false, err
	}
	if matcher == nil {
		return "", false, nil
	}

	match := matcher.FindString(Normalize(text))
	if match == "" {
		return "", false, nil
	}

	return match, true, nil
}
