package committee

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

const maxCacheEntries = 10_000

// qualityCache is a TTL-bounded, LRU-evicted cache of committee
// results, keyed by a hash of the evaluated text plus the committee
// composition that produced it (§4.5 "Caching").
type qualityCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxSize  int
	entries  map[string]*list.Element
	order    *list.List
	nowFn    func() time.Time
}

type cacheEntry struct {
	key       string
	result    Result
	expiresAt time.Time
}

func newQualityCache(maxSize int, ttl time.Duration) *qualityCache {
	if maxSize <= 0 || maxSize > maxCacheEntries {
		maxSize = maxCacheEntries
	}
	return &qualityCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		nowFn:   time.Now,
	}
}

func cacheKey(text string, models []ModelType, consensusThreshold float32) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte(0)
	for _, m := range models {
		b.WriteString(m.Provider)
		b.WriteByte('/')
		b.WriteString(m.RequestID)
		b.WriteByte(';')
	}
	fmt.Fprintf(&b, "|%v", consensusThreshold)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (c *qualityCache) get(text string, models []ModelType, consensusThreshold float32) (Result, bool) {
	key := cacheKey(text, models, consensusThreshold)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.nowFn().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return Result{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *qualityCache) put(text string, models []ModelType, consensusThreshold float32, result Result) {
	key := cacheKey(text, models, consensusThreshold)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).expiresAt = c.nowFn().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, result: result, expiresAt: c.nowFn().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.entries[key] = el

	for len(c.entries) > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}
