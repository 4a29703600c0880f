package cachedset

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotRebuildsLazily(t *testing.T) {
	builds := 0
	slot := NewSlot("test", func() (int, error) {
		builds++
		return builds * 10, nil
	})

	v, err := slot.Get()
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	// cached, no rebuild
	v, err = slot.Get()
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, builds)

	slot.Invalidate()

	v, err = slot.Get()
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, 2, builds)
}

func TestSlotSharedRebuild(t *testing.T) {
	var builds int64
	slot := NewSlot("concurrent", func() (string, error) {
		atomic.AddInt64(&builds, 1)
		return "built", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := slot.Get()
			assert.NoError(t, err)
			assert.Equal(t, "built", v)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&builds))
}

func TestSlotBuilderError(t *testing.T) {
	fail := true
	slot := NewSlot("failing", func() (int, error) {
		if fail {
			return 0, assert.AnError
		}
		return 42, nil
	})

	_, err := slot.Get()
	require.Error(t, err)

	// a failed build must not mark the slot valid
	fail = false
	v, err := slot.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
