package extent

import (
	"fmt"

	"github.com/lfskit/lfscache/internal/tag"
)

// Pre and post conditions (invariants) for LRU manipulation:
// * cache owns nodes between fakeHead and fakeTail.
// * {fakeHead, all cached nodes, fakeTail} are correct doubly linked list.
// * nodeCnt equals number of nodes in the list.
// * every listed node is indexed in its tree's nodes map, and the tree
//   is either reachable through trees or listed in zombies.
type tree struct {
	ino    uint64
	zombie bool
	nodes  map[uint64]*enode
}

type enode struct {
	Extent
	tree       *tree
	prev, next *enode
}

func link(a, b *enode) { a.next, b.prev = b, a }

// attachHot puts n before fakeTail, the last to be evicted position.
func (c *Cache) attachHot(n *enode) {
	link(c.fakeTail.prev, n)
	link(n, c.fakeTail)
}

// touch refreshes n's LRU position on hit.
func (c *Cache) touch(n *enode) {
	link(n.prev, n.next)
	c.attachHot(n)
}

// detachNode unlinks n from the LRU. Caller removes the tree index entry.
func (c *Cache) detachNode(n *enode) {
	link(n.prev, n.next)
	c.nodeCnt--
	if tag.Debug {
		if c.nodeCnt < 0 {
			panic("extent node counter underflow")
		}
		n.prev = nil
		n.next = nil
		n.tree = nil
	}
}

func (n *enode) GoString() string {
	return fmt.Sprintf("{ino:%v, logical:%v, len:%v, physical:%v}",
		n.tree.ino, n.Logical, n.Len, n.Physical)
}
