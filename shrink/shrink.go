// Package shrink is the memory pressure driven reclaim coordinator.
// Mounted filesystem instances join a process wide registry; the host
// reclaim framework asks the registry how many cache objects could be
// freed (Count) and to actually free some number of them (Scan).
// Scan is round robin fair across instances and never blocks on an
// instance that is concurrently unmounting.
package shrink

import (
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"

	"github.com/lfskit/lfscache/log"
)

// Resource is the capability every managed cache exposes to the
// coordinator.
type Resource interface {
	// Count cheaply approximates reclaimable object number. Never blocks on IO.
	Count() int64
	// Shrink frees up to nr objects, best effort. Batched eviction may
	// overshoot slightly.
	Shrink(nr int64) (freed int64)
}

// Caches bundles the three reclaim targets of one instance.
type Caches struct {
	Extent  Resource
	NAT     Resource
	FreeNID Resource
}

// Instance is per mounted filesystem registry record. It is owned by at
// most one Shrinker at a time.
type Instance struct {
	name   string
	caches Caches

	// unmount is the ownership gate between reclaim and teardown.
	// Reclaim paths only TryLock it; the unmount sequencer holds it
	// across Leave via BeginUnmount/EndUnmount.
	unmount sync.Mutex

	// runNo is the scan pass that most recently visited this record.
	// Stale between Scan calls, compared only within one pass.
	// Stamped with the gate held but without the structure lock, so
	// access is atomic.
	runNo atomic.Uint32

	owner      *Shrinker
	prev, next *Instance
}

func NewInstance(name string, caches Caches) *Instance {
	if caches.Extent == nil || caches.NAT == nil || caches.FreeNID == nil {
		panic("shrink: instance with nil cache resource")
	}
	return &Instance{name: name, caches: caches}
}

func (i *Instance) Name() string { return i.name }

// BeginUnmount closes the ownership gate for teardown. It waits for an
// in flight Count or Scan visit to let go of this record; reclaim paths
// themselves never wait here.
func (i *Instance) BeginUnmount() { i.unmount.Lock() }

func (i *Instance) EndUnmount() { i.unmount.Unlock() }

// reclaimable sums the three cache counts. Call without the structure
// lock held: counting may touch cache locks.
func (i *Instance) reclaimable() int64 {
	var count int64
	// count extent cache entries
	count += i.caches.Extent.Count()
	// count clean nat cache entries
	count += i.caches.NAT.Count()
	// count free nids cache entries
	count += i.caches.FreeNID.Count()
	return count
}

// Shrinker is the process wide registry of mounted instances.
type Shrinker struct {
	log log.Logger

	counts    metrics.Meter
	scans     metrics.Meter
	freedCnt  metrics.Counter
	busySkips metrics.Counter

	// mu protects membership and ordering of the instance list and the
	// run counter, nothing else. Critical sections are O(1); it is
	// never held across a Resource call.
	mu    sync.Mutex
	runNo uint32

	fakeHead, fakeTail *Instance
	size               int
}

func New(l log.Logger) *Shrinker {
	return NewRegistered(l, metrics.NewRegistry())
}

func NewRegistered(l log.Logger, r metrics.Registry) *Shrinker {
	s := &Shrinker{
		log:       l,
		counts:    metrics.NewRegisteredMeter("shrink.count", r),
		scans:     metrics.NewRegisteredMeter("shrink.scan", r),
		freedCnt:  metrics.NewRegisteredCounter("shrink.freed", r),
		busySkips: metrics.NewRegisteredCounter("shrink.busy_skip", r),
	}
	s.fakeHead, s.fakeTail = &Instance{}, &Instance{}
	link(s.fakeHead, s.fakeTail)
	return s
}

// Count reports how many objects could be reclaimed right now, summed
// across all joined instances. It is a snapshot approximation: no
// consistency across caches or instances. Instances mid teardown are
// skipped, never waited on.
func (s *Shrinker) Count() int64 {
	var count int64
	s.mu.Lock()
	for inst := s.head(); !s.end(inst); inst = inst.next {
		// stop instance teardown
		if !inst.unmount.TryLock() {
			s.busySkips.Inc(1)
			continue
		}
		s.mu.Unlock()

		count += inst.reclaimable()

		s.mu.Lock()
		// Advance before the gate opens: while we hold both the gate
		// and mu, Leave cannot unlink inst, so inst.next is ours to read.
		inst.unmount.Unlock()
	}
	s.mu.Unlock()
	s.counts.Mark(1)
	return count
}

// Scan frees up to nr objects. Per visited instance the budget is
// tiered: half of nr goes to the extent cache first, the remainder
// cascades to NAT and free nid caches. freed accumulates across
// instances, so later instances only see what earlier ones left.
// Successfully serviced instances move to the registry tail; that is
// what makes repeated Scans round robin fair.
//
// The return value may exceed nr slightly, but no further shrink work
// is issued once freed reaches nr.
func (s *Shrinker) Scan(nr int64) int64 {
	var freed int64
	var skips int
	s.mu.Lock()
	runNo := s.nextRunNo()
	for inst := s.head(); !s.end(inst); {
		if inst.runNo.Load() == runNo {
			// Serviced records go to the tail, so meeting this pass's
			// stamp means a full cycle is complete.
			break
		}
		// stop instance teardown
		if !inst.unmount.TryLock() {
			s.busySkips.Inc(1)
			// A perpetually busy record is skipped in place each lap;
			// bound skip-only iterations by registry size so the walk
			// always terminates.
			skips++
			if skips > s.size {
				break
			}
			inst = inst.next
			continue
		}
		s.mu.Unlock()

		inst.runNo.Store(runNo)

		// shrink extent cache entries
		freed += inst.caches.Extent.Shrink(nr >> 1)

		// shrink clean nat cache entries
		if freed < nr {
			freed += inst.caches.NAT.Shrink(nr - freed)
		}

		// shrink free nids cache entries
		if freed < nr {
			freed += inst.caches.FreeNID.Shrink(nr - freed)
		}

		s.mu.Lock()
		next := inst.next
		s.moveToTail(inst)
		inst.unmount.Unlock()
		if freed >= nr {
			break
		}
		inst = next
	}
	s.mu.Unlock()
	s.scans.Mark(1)
	s.freedCnt.Inc(freed)
	s.log.Debugf("scan target %v freed %v", nr, freed)
	return freed
}

// nextRunNo returns a fresh nonzero run id. Call with mu held.
func (s *Shrinker) nextRunNo() uint32 {
	s.runNo++
	if s.runNo == 0 {
		s.runNo++
	}
	return s.runNo
}

// Join makes inst eligible for Count and Scan. Call once, after the
// instance caches are initialized and before it serves IO.
func (s *Shrinker) Join(inst *Instance) {
	s.mu.Lock()
	if inst.owner != nil {
		s.mu.Unlock()
		s.log.Panicf("instance %s joined twice", inst.name)
	}
	inst.owner = s
	s.pushBack(inst)
	s.size++
	s.mu.Unlock()
	s.log.Debugf("instance %s joined shrinker", inst.name)
}

// Leave drains inst's extent cache whole and removes the record from
// the registry. The caller must already hold the unmount gate (see
// BeginUnmount), which keeps Count and Scan off this record. After
// Leave returns the record is unreachable to future walks.
func (s *Shrinker) Leave(inst *Instance) {
	// The full current count, not some caller target: a leaving
	// instance gives every extent object back.
	inst.caches.Extent.Shrink(inst.caches.Extent.Count())

	s.mu.Lock()
	if inst.owner != s {
		s.mu.Unlock()
		s.log.Panicf("instance %s left foreign shrinker", inst.name)
	}
	s.unlink(inst)
	s.size--
	inst.owner = nil
	s.mu.Unlock()
	s.log.Debugf("instance %s left shrinker", inst.name)
}

// Size reports joined instance number.
func (s *Shrinker) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
