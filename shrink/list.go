package shrink

import "github.com/lfskit/lfscache/internal/tag"

// Registry list invariants, held whenever mu is free:
// * {fakeHead, all joined instances, fakeTail} are correct doubly linked list.
// * every listed instance has owner equal to this Shrinker.
// * size equals number of listed instances.
// * no instance is listed twice.
//
// Fake sentinels spare nil checks:
// nil <- fakeHead <-> inst_0 <-> ... <-> inst_(n-1) <-> fakeTail -> nil
// fakeHead.next is the scan start; serviced instances go before fakeTail.

func link(a, b *Instance) { a.next, b.prev = b, a }

func (s *Shrinker) head() *Instance { return s.fakeHead.next }

func (s *Shrinker) end(i *Instance) bool { return i == s.fakeTail }

func (s *Shrinker) pushBack(i *Instance) {
	link(s.fakeTail.prev, i)
	link(i, s.fakeTail)
}

func (s *Shrinker) unlink(i *Instance) {
	link(i.prev, i.next)
	if tag.Debug {
		i.prev = nil
		i.next = nil
	}
}

func (s *Shrinker) moveToTail(i *Instance) {
	link(i.prev, i.next)
	s.pushBack(i)
}
