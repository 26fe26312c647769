package resolvermodule

import (
	"fmt"
	"sync"
	"time"

	"github.com/tunegrab/tunegrab/internal/logger"
)

// Credential is one search API key plus its advisory quota bookkeeping.
// Quota counters are estimates only; the provider's own rejection is the
// ground truth for exhaustion.
type Credential struct {
	KeyID  string
	Secret string
}

type credentialState struct {
	cred          Credential
	usedEstimate  int64
	cooldownUntil time.Time
	rotations     int64
}

// CredentialPool is the only shared mutable state in the pipeline. All
// reads and advances go through its mutex; no caller holds a reference
// into pool internals.
type CredentialPool struct {
	mu         sync.Mutex
	keys       []*credentialState
	cursor     int
	dailyQuota int64
	cooldown   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewCredentialPool builds a pool over the configured keys in order.
// Key IDs are positional; secrets are never logged.
func NewCredentialPool(secrets []string, dailyQuota int64, cooldown time.Duration) *CredentialPool {
	p := &CredentialPool{
		dailyQuota: dailyQuota,
		cooldown:   cooldown,
		now:        time.Now,
	}
	for i, secret := range secrets {
		p.keys = append(p.keys, &credentialState{
			cred: Credential{KeyID: keyID(i), Secret: secret},
		})
	}
	return p
}

func keyID(i int) string {
	return fmt.Sprintf("key-%d", i+1)
}

// Size returns the number of configured keys.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the key at the cursor, skipping forward past keys still
// in cooldown. Returns false when every key is cooling or none are
// configured.
func (p *CredentialPool) Current() (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstAvailableLocked(p.cursor)
}

// Advance moves past fromKeyID to the next key whose cooldown has
// elapsed. When another caller already advanced the cursor, the current
// key is returned as-is, so concurrent resolutions never skip a live key.
// Returns false when the pool is fully exhausted.
func (p *CredentialPool) Advance(fromKeyID string) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return Credential{}, false
	}

	current := p.keys[p.cursor]
	if current.cred.KeyID == fromKeyID {
		p.cursor = (p.cursor + 1) % len(p.keys)
		current.rotations++
	}
	return p.firstAvailableLocked(p.cursor)
}

// MarkExhausted puts the key into cooldown and resets its usage estimate.
// Idempotent; marking an already-cooling key extends nothing.
func (p *CredentialPool) MarkExhausted(keyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ks := range p.keys {
		if ks.cred.KeyID != keyID {
			continue
		}
		if p.now().Before(ks.cooldownUntil) {
			return
		}
		ks.cooldownUntil = p.now().Add(p.cooldown)
		ks.usedEstimate = 0
		logger.Warn("search key exhausted, entering cooldown", []logger.Field{
			logger.String("key_id", keyID),
			logger.Duration("cooldown", p.cooldown),
		})
		return
	}
}

// RecordUsage adds an advisory cost estimate for the key. Estimates are
// eventually consistent and never gate a request on their own.
func (p *CredentialPool) RecordUsage(keyID string, cost int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ks := range p.keys {
		if ks.cred.KeyID == keyID {
			ks.usedEstimate += cost
			return
		}
	}
}

// KeyStats is a point-in-time snapshot of one key for admin surfaces.
type KeyStats struct {
	KeyID         string    `json:"key_id"`
	UsedEstimate  int64     `json:"used_estimate"`
	DailyQuota    int64     `json:"daily_quota"`
	InCooldown    bool      `json:"in_cooldown"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	Rotations     int64     `json:"rotations"`
}

// Stats snapshots every key's advisory counters.
func (p *CredentialPool) Stats() []KeyStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]KeyStats, 0, len(p.keys))
	for _, ks := range p.keys {
		out = append(out, KeyStats{
			KeyID:         ks.cred.KeyID,
			UsedEstimate:  ks.usedEstimate,
			DailyQuota:    p.dailyQuota,
			InCooldown:    now.Before(ks.cooldownUntil),
			CooldownUntil: ks.cooldownUntil,
			Rotations:     ks.rotations,
		})
	}
	return out
}

// firstAvailableLocked scans at most len(keys) entries starting at the
// given index and returns the first key not in cooldown. Callers must
// hold the lock. The bounded scan is what guarantees exhaustion
// terminates instead of looping.
func (p *CredentialPool) firstAvailableLocked(start int) (Credential, bool) {
	if len(p.keys) == 0 {
		return Credential{}, false
	}

	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		idx := (start + i) % len(p.keys)
		if now.Before(p.keys[idx].cooldownUntil) {
			continue
		}
		p.cursor = idx
		return p.keys[idx].cred, true
	}
	return Credential{}, false
}
