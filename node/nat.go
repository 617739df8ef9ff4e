// Package node provides node manager caches: the node address table
// (NAT) entry cache and the free node id cache. Both are reclaim
// targets of the shrinker; only clean NAT entries and free ids above
// the retained watermark are ever given back.
package node

import (
	"sync"

	"github.com/lfskit/lfscache/log"
	"github.com/lfskit/lfscache/tunable"
)

// natEntry is member of the clean LRU while clean. Dirty entries carry
// unwritten address updates and are unlinked until flushed.
type natEntry struct {
	nid        uint32
	addr       uint64
	dirty      bool
	prev, next *natEntry
}

type NATCache struct {
	log log.Logger

	mu      sync.Mutex
	entries map[uint32]*natEntry

	// Clean LRU. Cold end after fakeHead.
	fakeHead, fakeTail *natEntry
	cleanCnt           int64
	dirtyCnt           int64

	// dirtyRatio is allowed dirty share in percent, sysfs dirty_nats_ratio.
	dirtyRatio *tunable.Value
}

func NewNATCache(l log.Logger, dirtyRatio *tunable.Value) *NATCache {
	c := &NATCache{
		log:        l,
		entries:    make(map[uint32]*natEntry),
		dirtyRatio: dirtyRatio,
	}
	c.fakeHead, c.fakeTail = &natEntry{}, &natEntry{}
	natLink(c.fakeHead, c.fakeTail)
	return c
}

// Set caches address addr for node nid. New entries start clean.
func (c *NATCache) Set(nid uint32, addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[nid]; ok {
		e.addr = addr
		if !e.dirty {
			c.touch(e)
		}
		return
	}
	e := &natEntry{nid: nid, addr: addr}
	c.entries[nid] = e
	c.attachClean(e)
}

func (c *NATCache) Lookup(nid uint32) (addr uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nid]
	if !ok {
		return 0, false
	}
	if !e.dirty {
		c.touch(e)
	}
	return e.addr, true
}

// SetDirty marks nid's entry dirty, pinning it against reclaim until
// the next Flush. Reports whether the entry was present.
func (c *NATCache) SetDirty(nid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[nid]
	if !ok {
		return false
	}
	if e.dirty {
		return true
	}
	c.detachClean(e)
	e.dirty = true
	c.dirtyCnt++
	return true
}

// Flush simulates NAT writeback: every dirty entry becomes clean and
// reclaimable again. Returns number of entries flushed.
func (c *NATCache) Flush() (flushed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !e.dirty {
			continue
		}
		e.dirty = false
		c.dirtyCnt--
		c.attachClean(e)
		flushed++
	}
	return flushed
}

// ExcessDirty reports whether dirty entries exceed the dirty_nats_ratio
// share of the cache. Callers use it to schedule a Flush.
func (c *NATCache) ExcessDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.cleanCnt + c.dirtyCnt
	if total == 0 {
		return false
	}
	return c.dirtyCnt*100 > total*c.dirtyRatio.Get()
}

// Count reports reclaimable entries. Dirty entries are never reported.
func (c *NATCache) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanCnt
}

// Shrink evicts up to nr clean entries from the cold end.
func (c *NATCache) Shrink(nr int64) (freed int64) {
	if nr <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for freed < nr && c.cleanCnt > 0 {
		e := c.fakeHead.next
		c.detachClean(e)
		delete(c.entries, e.nid)
		freed++
	}
	return freed
}

func (c *NATCache) Dirty() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyCnt
}

func (c *NATCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func natLink(a, b *natEntry) { a.next, b.prev = b, a }

func (c *NATCache) attachClean(e *natEntry) {
	natLink(c.fakeTail.prev, e)
	natLink(e, c.fakeTail)
	c.cleanCnt++
}

func (c *NATCache) detachClean(e *natEntry) {
	natLink(e.prev, e.next)
	e.prev, e.next = nil, nil
	c.cleanCnt--
}

func (c *NATCache) touch(e *natEntry) {
	c.detachClean(e)
	c.attachClean(e)
}
