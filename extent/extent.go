// Package extent provides the in-memory cache of logical to physical
// range mappings. Every inode owns one extent tree; trees detached from
// their inode but not yet disposed are zombies. Cached extent nodes of
// all live trees share one global LRU, so eviction pressure is applied
// filesystem wide, not per inode.
package extent

import (
	"sync"

	"github.com/lfskit/lfscache/log"
)

// Extent is contiguous mapping of Len blocks starting at Logical
// to the same number of blocks starting at Physical.
type Extent struct {
	Logical  uint64
	Len      uint32
	Physical uint64
}

func (e Extent) contains(logical uint64) bool {
	return e.Logical <= logical && logical < e.Logical+uint64(e.Len)
}

type Cache struct {
	log log.Logger

	mu      sync.Mutex
	trees   map[uint64]*tree
	zombies []*tree

	// Global node LRU. Cold end after fakeHead, hot end before fakeTail.
	fakeHead, fakeTail *enode
	nodeCnt            int64
}

func NewCache(l log.Logger) *Cache {
	c := &Cache{
		log:   l,
		trees: make(map[uint64]*tree),
	}
	c.fakeHead, c.fakeTail = &enode{}, &enode{}
	link(c.fakeHead, c.fakeTail)
	return c
}

// Set caches mapping ext for inode ino. An extent with the same logical
// start replaces the old one in place.
func (c *Cache) Set(ino uint64, ext Extent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trees[ino]
	if !ok {
		t = &tree{ino: ino, nodes: make(map[uint64]*enode)}
		c.trees[ino] = t
	}
	if n, ok := t.nodes[ext.Logical]; ok {
		n.Extent = ext
		c.touch(n)
		return
	}
	n := &enode{Extent: ext, tree: t}
	t.nodes[ext.Logical] = n
	c.attachHot(n)
	c.nodeCnt++
}

// Lookup resolves logical block of inode ino through the cache.
// A hit refreshes the node's LRU position.
func (c *Cache) Lookup(ino, logical uint64) (Extent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trees[ino]
	if !ok {
		return Extent{}, false
	}
	for _, n := range t.nodes {
		if n.contains(logical) {
			c.touch(n)
			return n.Extent, true
		}
	}
	return Extent{}, false
}

// Detach unhooks inode's tree from the cache index. A tree that still
// holds nodes becomes a zombie: its nodes stay countable and evictable
// until Shrink disposes of them.
func (c *Cache) Detach(ino uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trees[ino]
	if !ok {
		return
	}
	delete(c.trees, ino)
	if len(t.nodes) == 0 {
		return
	}
	t.zombie = true
	c.zombies = append(c.zombies, t)
}

// Count reports reclaimable objects: zombie trees plus cached nodes.
func (c *Cache) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.zombies)) + c.nodeCnt
}

// Shrink frees up to nr objects. Zombie trees go first, they are pure
// garbage; then nodes are evicted from the cold end of the LRU.
// A zombie tree is dropped whole, so the return value may exceed nr by
// the last tree's node batch.
func (c *Cache) Shrink(nr int64) (freed int64) {
	if nr <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for freed < nr && len(c.zombies) > 0 {
		last := len(c.zombies) - 1
		t := c.zombies[last]
		c.zombies[last] = nil
		c.zombies = c.zombies[:last]
		for _, n := range t.nodes {
			c.detachNode(n)
			freed++
		}
		t.nodes = nil
		freed++ // the tree itself
	}
	for freed < nr && c.nodeCnt > 0 {
		n := c.fakeHead.next
		delete(n.tree.nodes, n.Logical)
		c.detachNode(n)
		freed++
	}
	return freed
}

// DrainAll evicts everything currently cached, including live trees'
// nodes. Used on unmount.
func (c *Cache) DrainAll() int64 {
	return c.Shrink(c.Count())
}

// Nodes reports currently cached node number.
func (c *Cache) Nodes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeCnt
}

// Zombies reports detached tree number.
func (c *Cache) Zombies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.zombies)
}
