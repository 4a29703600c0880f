package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnowflakeCreated(t *testing.T) {
	// id with a timestamp of exactly the epoch
	assert.EqualValues(t, snowflakeEpochMs, SnowflakeCreated(0).UnixMilli())

	// one hour past the epoch, shifted into the timestamp bits
	id := int64(time.Hour/time.Millisecond) << 22
	assert.True(t, SnowflakeCreated(id).Equal(time.UnixMilli(snowflakeEpochMs).Add(time.Hour)))
}

func TestAccountAge(t *testing.T) {
	now := time.Now()

	evt := &MessageEvent{
		AuthorCreated: now.Add(-2 * time.Hour),
		Timestamp:     now,
	}
	assert.Equal(t, 2*time.Hour, evt.AccountAge())

	// falls back to the author snowflake when no creation time was provided
	evt = &MessageEvent{
		AuthorID:  int64(time.Hour/time.Millisecond) << 22,
		Timestamp: time.UnixMilli(snowflakeEpochMs).Add(25 * time.Hour),
	}
	assert.Equal(t, 24*time.Hour, evt.AccountAge())
}

func TestMessageLink(t *testing.T) {
	assert.Equal(t,
		"https://discord.com/channels/1/2/3",
		MessageLink(1, 2, 3))
}
