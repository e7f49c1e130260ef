package manager

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

// resultCache memoizes greedy outputs. Greedy decoding on fixed weights is
// deterministic, so a hit is indistinguishable from a fresh generation.
type resultCache struct {
	c *ttlcache.Cache[uint64, []string]
}

func newResultCache(ttl time.Duration, size uint64) *resultCache {
	c := ttlcache.New[uint64, []string](
		ttlcache.WithTTL[uint64, []string](ttl),
		ttlcache.WithCapacity[uint64, []string](size),
		ttlcache.WithDisableTouchOnHit[uint64, []string](),
	)
	go c.Start()
	return &resultCache{c: c}
}

// cacheKey hashes the weights identity, the token budget and every input.
func cacheKey(digest string, inputs []string, maxNewTokens int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(digest)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(maxNewTokens))
	for _, in := range inputs {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(strconv.Itoa(len(in)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(in)
	}
	return h.Sum64()
}

func (r *resultCache) get(key uint64) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	it := r.c.Get(key)
	if it == nil {
		return nil, false
	}
	return append([]string(nil), it.Value()...), true
}

func (r *resultCache) set(key uint64, out []string) {
	if r == nil {
		return
	}
	r.c.Set(key, append([]string(nil), out...), ttlcache.DefaultTTL)
}

func (r *resultCache) stop() {
	if r != nil {
		r.c.Stop()
	}
}
