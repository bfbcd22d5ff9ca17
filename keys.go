package tameng

import (
	"sync"
	"time"
)

// KeyRecord tracks one credential inside a provider pool. Records are never
// destroyed during the process lifetime, only blocked, unblocked or reset.
type KeyRecord struct {
	Credential   string
	Provider     string
	RequestCount uint64
	LastUsedAt   time.Time

	blocked      bool
	unblockTimer *time.Timer
}

// keyPool holds a provider's credentials in registration order. All field
// mutation happens under the pool mutex, including KeyRecord fields.
type keyPool struct {
	mu       sync.Mutex
	provider string
	keys     []*KeyRecord
}

func newKeyPool(provider string) *keyPool {
	return &keyPool{provider: provider}
}

// add appends credentials not already present.
func (p *keyPool) add(credentials ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range credentials {
		if p.findLocked(cred) != nil {
			continue
		}
		p.keys = append(p.keys, &KeyRecord{
			Credential: cred,
			Provider:   p.provider,
		})
	}
}

// acquire selects the least-recently-used unblocked credential, bumps its
// request count, and marks it used. Returns false when everything is
// blocked or the pool is empty.
func (p *keyPool) acquire() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *KeyRecord
	for _, k := range p.keys {
		if k.blocked {
			continue
		}
		if best == nil || k.LastUsedAt.Before(best.LastUsedAt) {
			best = k
		}
	}
	if best == nil {
		return "", false
	}

	best.RequestCount++
	best.LastUsedAt = time.Now()
	return best.Credential, true
}

// block puts a credential in cooldown, scheduling an automatic unblock.
func (p *keyPool) block(credential string, cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := p.findLocked(credential)
	if k == nil || k.blocked {
		return
	}
	k.blocked = true
	if k.unblockTimer != nil {
		k.unblockTimer.Stop()
	}
	k.unblockTimer = time.AfterFunc(cooldown, func() {
		p.unblock(credential)
	})
}

func (p *keyPool) unblock(credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k := p.findLocked(credential); k != nil {
		k.blocked = false
		if k.unblockTimer != nil {
			k.unblockTimer.Stop()
			k.unblockTimer = nil
		}
	}
}

// unblockAll lifts every cooldown in the pool.
func (p *keyPool) unblockAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		k.blocked = false
		if k.unblockTimer != nil {
			k.unblockTimer.Stop()
			k.unblockTimer = nil
		}
	}
}

// reset lifts cooldowns and zeroes usage tracking for every credential.
func (p *keyPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		k.blocked = false
		k.RequestCount = 0
		k.LastUsedAt = time.Time{}
		if k.unblockTimer != nil {
			k.unblockTimer.Stop()
			k.unblockTimer = nil
		}
	}
}

func (p *keyPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func (p *keyPool) available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, k := range p.keys {
		if !k.blocked {
			n++
		}
	}
	return n
}

func (p *keyPool) blockedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, k := range p.keys {
		if k.blocked {
			n++
		}
	}
	return n
}

// snapshot copies the pool's records for stats; timers are not shared.
func (p *keyPool) snapshot() []KeyRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]KeyRecord, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, KeyRecord{
			Credential:   k.Credential,
			Provider:     k.Provider,
			RequestCount: k.RequestCount,
			LastUsedAt:   k.LastUsedAt,
			blocked:      k.blocked,
		})
	}
	return out
}

// Blocked reports whether the record was in cooldown when snapshotted.
func (k KeyRecord) Blocked() bool {
	return k.blocked
}

// stop cancels all pending unblock timers; blocked flags are left as-is.
func (p *keyPool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		if k.unblockTimer != nil {
			k.unblockTimer.Stop()
			k.unblockTimer = nil
		}
	}
}

func (p *keyPool) findLocked(credential string) *KeyRecord {
	for _, k := range p.keys {
		if k.Credential == credential {
			return k
		}
	}
	return nil
}
