package node

import (
	"sync"

	"github.com/lfskit/lfscache/log"
	"github.com/lfskit/lfscache/tunable"
)

// FreeNIDs caches preallocated unused node ids. Ids below the retained
// watermark (sysfs max_free_nids) are kept so allocation never has to
// rescan on-disk NAT under ordinary load; only the excess is reclaimable.
type FreeNIDs struct {
	log log.Logger

	mu      sync.Mutex
	free    []uint32
	present map[uint32]struct{}

	watermark *tunable.Value
}

func NewFreeNIDs(l log.Logger, watermark *tunable.Value) *FreeNIDs {
	return &FreeNIDs{
		log:       l,
		present:   make(map[uint32]struct{}),
		watermark: watermark,
	}
}

// Free returns nid to the cache. Duplicate frees are ignored.
func (f *FreeNIDs) Free(nid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.present[nid]; ok {
		return
	}
	f.present[nid] = struct{}{}
	f.free = append(f.free, nid)
}

// Alloc takes a cached free id. ok is false when the cache is empty and
// the caller must fall back to an on-disk scan.
func (f *FreeNIDs) Alloc() (nid uint32, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.free) == 0 {
		return 0, false
	}
	last := len(f.free) - 1
	nid = f.free[last]
	f.free = f.free[:last]
	delete(f.present, nid)
	return nid, true
}

func (f *FreeNIDs) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.free)
}

// Count reports cached ids in excess of the watermark, clamped at zero.
func (f *FreeNIDs) Count() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := int64(len(f.free)) - f.watermark.Get()
	if count < 0 {
		return 0
	}
	return count
}

// Shrink forgets up to nr ids above the watermark. Forgotten ids are
// rediscovered by NAT scan when needed, so dropping them loses nothing.
func (f *FreeNIDs) Shrink(nr int64) (freed int64) {
	if nr <= 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for freed < nr && int64(len(f.free)) > f.watermark.Get() {
		last := len(f.free) - 1
		nid := f.free[last]
		f.free = f.free[:last]
		delete(f.present, nid)
		freed++
	}
	return freed
}
