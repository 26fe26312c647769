package resolvermodule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCurrentSkipsCoolingKeys(t *testing.T) {
	pool := NewCredentialPool([]string{"s1", "s2", "s3"}, 10000, 24*time.Hour)

	cred, ok := pool.Current()
	require.True(t, ok)
	assert.Equal(t, "key-1", cred.KeyID)

	pool.MarkExhausted("key-1")

	cred, ok = pool.Current()
	require.True(t, ok)
	assert.Equal(t, "key-2", cred.KeyID, "a key in cooldown is never selected")
}

func TestPoolAdvanceWrapsAndExhausts(t *testing.T) {
	pool := NewCredentialPool([]string{"s1", "s2"}, 10000, 24*time.Hour)

	cred, _ := pool.Current()
	pool.MarkExhausted(cred.KeyID)
	cred, ok := pool.Advance(cred.KeyID)
	require.True(t, ok)
	assert.Equal(t, "key-2", cred.KeyID)

	pool.MarkExhausted(cred.KeyID)
	_, ok = pool.Advance(cred.KeyID)
	assert.False(t, ok, "a fully cooling pool reports exhaustion")
}

func TestPoolCooldownElapsesAndKeyReturns(t *testing.T) {
	pool := NewCredentialPool([]string{"s1"}, 10000, 24*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return base }

	pool.MarkExhausted("key-1")
	_, ok := pool.Current()
	assert.False(t, ok)

	pool.now = func() time.Time { return base.Add(24*time.Hour + time.Minute) }
	cred, ok := pool.Current()
	require.True(t, ok)
	assert.Equal(t, "key-1", cred.KeyID, "cooldown elapse restores the key")
}

func TestPoolAdvanceIsIdempotentUnderConcurrency(t *testing.T) {
	pool := NewCredentialPool([]string{"s1", "s2", "s3"}, 10000, 24*time.Hour)

	cred, _ := pool.Current()
	var wg sync.WaitGroup
	results := make([]Credential, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, ok := pool.Advance(cred.KeyID)
			require.True(t, ok)
			results[i] = c
		}(i)
	}
	wg.Wait()

	// Only the first advance moves the cursor; the rest see the same
	// already-advanced key instead of racing further around the pool.
	for _, c := range results {
		assert.Equal(t, "key-2", c.KeyID)
	}
}

func TestPoolEmptyPool(t *testing.T) {
	pool := NewCredentialPool(nil, 10000, time.Hour)

	_, ok := pool.Current()
	assert.False(t, ok)
	_, ok = pool.Advance("key-1")
	assert.False(t, ok)
}

func TestPoolStatsAreAdvisory(t *testing.T) {
	pool := NewCredentialPool([]string{"s1", "s2"}, 10000, time.Hour)

	pool.RecordUsage("key-1", 100)
	pool.RecordUsage("key-1", 100)
	pool.MarkExhausted("key-2")

	stats := pool.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(200), stats[0].UsedEstimate)
	assert.False(t, stats[0].InCooldown)
	assert.True(t, stats[1].InCooldown)
	assert.Equal(t, int64(0), stats[1].UsedEstimate, "exhaustion resets the usage estimate")
}
