package moderation

import (
	"sync"
	"time"
)

// Per-user lock around mute state changes, so that two events punishing
// the same user don't interleave their deactivate-then-insert sequences
// within this process.

var (
	muteLocks   = make(map[int64]bool)
	muteLocksmu sync.Mutex
)

func LockMute(uID int64) {
	for {
		muteLocksmu.Lock()
		if l, ok := muteLocks[uID]; !ok || !l {
			muteLocks[uID] = true
			muteLocksmu.Unlock()
			return
		}
		muteLocksmu.Unlock()

		time.Sleep(time.Millisecond * 250)
	}
}

func UnlockMute(uID int64) {
	muteLocksmu.Lock()
	delete(muteLocks, uID)
	muteLocksmu.Unlock()
}
