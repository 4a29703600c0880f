// Package highlights notifies users when words they watch come up in
// chat. The per-user watch lists are folded into a trigger -> owners
// index, cached and lazily rebuilt on mutation, since the scan runs for
// every message.
package highlights

import (
	"strconv"
	"strings"
	"time"

	"github.com/ward-gg/wardbot/common"
	"github.com/ward-gg/wardbot/common/cachedset"
	"github.com/ward-gg/wardbot/common/pubsub"
)

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Highlights",
		SysName:  "highlights",
		Category: common.PluginCategoryMisc,
	}
}

var logger = common.GetPluginLogger(&Plugin{})

func RegisterPlugin() {
	common.RegisterPlugin(&Plugin{})
}

const (
	// watch list quotas, privileged roles get the larger one
	QuotaMember     = 4
	QuotaPrivileged = 20

	MinTriggerLength = 3
)

const EvtEvictHighlights = "evict_highlights_cache"

// TriggerIndex maps each registered trigger (lower case) to the users
// watching it.
type TriggerIndex map[string][]int64

var indexSlot = cachedset.NewSlot("highlight_index", buildIndex)

func init() {
	pubsub.AddHandler(EvtEvictHighlights, func(evt *pubsub.Event) {
		indexSlot.Invalidate()
	}, nil)
}

func normalizeTrigger(trigger string) string {
	return strings.ToLower(strings.TrimSpace(trigger))
}

// checkAddable validates a normalized trigger against the length rule and
// the owner's quota and current watch list.
func checkAddable(ownerID int64, trigger string, quota int) error {
	if len(trigger) < MinTriggerLength {
		return common.NewUserError("highlight has to be at least 3 characters long")
	}

	current, err := TriggersFor(ownerID)
	if err != nil {
		return err
	}
	if common.ContainsStringSlice(current, trigger) {
		return common.NewUserError("you are already watching that word")
	}
	if len(current) >= quota {
		return common.NewUserError("you can only watch a maximum of " + strconv.Itoa(quota) + " highlights")
	}

	return nil
}

// AddTrigger registers a watched word for the owner. The quota is supplied
// by the caller since permission resolution lives outside the core.
func AddTrigger(ownerID int64, trigger string, quota int) error {
	trigger = normalizeTrigger(trigger)
	if err := checkAddable(ownerID, trigger, quota); err != nil {
		return err
	}

	res, err := common.DB.Exec(`INSERT INTO highlight_entries (owner_id, word, added_at) VALUES (?, ?, ?)
	ON CONFLICT (owner_id, word) DO NOTHING`, ownerID, trigger, time.Now().Unix())
	if err != nil {
		return common.ErrWithCaller(err)
	}
	if n, _ := res.RowsAffected(); n < 1 {
		return common.NewUserError("you are already watching that word")
	}

	invalidate()
	return nil
}

// RemoveTrigger stops watching a word.
func RemoveTrigger(ownerID int64, trigger string) error {
	trigger = strings.ToLower(strings.TrimSpace(trigger))

	res, err := common.DB.Exec(`DELETE FROM highlight_entries WHERE owner_id = ? AND word = ?`, ownerID, trigger)
	if err != nil {
		return common.ErrWithCaller(err)
	}
	if n, _ := res.RowsAffected(); n < 1 {
		return common.NewUserError("you are not watching that word")
	}

	invalidate()
	return nil
}

// ClearTriggers drops the owner's whole watch list.
func ClearTriggers(ownerID int64) error {
	_, err := common.DB.Exec(`DELETE FROM highlight_entries WHERE owner_id = ?`, ownerID)
	if err != nil {
		return common.ErrWithCaller(err)
	}

	invalidate()
	return nil
}

// TriggersFor lists the owner's watched words.
func TriggersFor(ownerID int64) ([]string, error) {
	rows, err := common.DB.Query(`SELECT word FROM highlight_entries WHERE owner_id = ? ORDER BY word`, ownerID)
	if err != nil {
		return nil, common.ErrWithCaller(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, common.ErrWithCaller(err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// Index returns the cached trigger index, rebuilding it if invalidated.
func Index() (TriggerIndex, error) {
	return indexSlot.Get()
}

func invalidate() {
	indexSlot.Invalidate()
	if common.RedisPool != nil {
		pubsub.PublishLogErr(EvtEvictHighlights, nil)
	}
}

func buildIndex() (TriggerIndex, error) {
	rows, err := common.DB.Query(`SELECT owner_id, word FROM highlight_entries`)
	if err != nil {
		return nil, common.ErrWithCaller(err)
	}
	defer rows.Close()

	index := make(TriggerIndex)
	for rows.Next() {
		var owner int64
		var trigger string
		if err := rows.Scan(&owner, &trigger); err != nil {
			return nil, common.ErrWithCaller(err)
		}
		index[trigger] = append(index[trigger], owner)
	}

	return index, rows.Err()
}

// Matches scans the message text for all registered triggers,
// case-insensitive substring semantics. Compute-bound in the number of
// triggers across all users, which is why the engine runs it off the
// dispatch path.
func (idx TriggerIndex) Matches(content string) map[string][]int64 {
	lowered := strings.ToLower(content)

	var out map[string][]int64
	for trigger, owners := range idx {
		if strings.Contains(lowered, trigger) {
			if out == nil {
				out = make(map[string][]int64)
			}
			out[trigger] = owners
		}
	}

	return out
}
