package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMuteLockBlocksUntilReleased(t *testing.T) {
	LockMute(1)

	var released time.Time
	go func() {
		time.Sleep(500 * time.Millisecond)
		released = time.Now()
		UnlockMute(1)
	}()

	LockMute(1)
	acquired := time.Now()
	UnlockMute(1)

	assert.False(t, acquired.Before(released), "second holder acquired before the first released")
}

func TestMuteLockUsersIndependent(t *testing.T) {
	LockMute(1)
	defer UnlockMute(1)

	done := make(chan struct{})
	go func() {
		LockMute(2)
		UnlockMute(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("locking a different user blocked on an unrelated lock")
	}
}

func BenchmarkMuteLock(b *testing.B) {
	for i := 0; i < b.N; i++ {
		LockMute(1)
		UnlockMute(1)
	}
}
