// Command lfsload mounts synthetic filesystem instances, churns their
// caches from worker goroutines and drives the shrinker the way a host
// reclaim framework would: poll Count, Scan when over the watermark.
package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/lfskit/lfscache"
	"github.com/lfskit/lfscache/extent"
	"github.com/lfskit/lfscache/log"
	"github.com/lfskit/lfscache/shrink"
)

func main() {
	conf := config()
	l := log.NewLogger(conf.LogLevel, conf.LogDestination)
	l.Debugf("Config: %#v", conf)

	registry := metrics.NewRegistry()
	shr := shrink.NewRegistered(l, registry)

	var fss []*lfscache.FS
	for i := 0; i < conf.Instances; i++ {
		fs, err := lfscache.Mount(l, shr, lfscache.Config{
			Name: fmt.Sprintf("lfs%d", i),
		})
		if err != nil {
			l.Fatal("Mount error: ", err)
		}
		fss = append(fss, fs)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, fs := range fss {
		for w := 0; w < conf.Workers; w++ {
			wg.Add(1)
			go func(fs *lfscache.FS, seed int64) {
				defer wg.Done()
				churn(fs, registry, seed, stop)
			}(fs, rand.Int63())
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pressure(l, shr, conf, stop)
	}()

	reportTick := time.NewTicker(conf.ReportEvery)
	defer reportTick.Stop()
	deadline := time.After(conf.Duration)
	l.Infof("Churning %v instances for %v.", conf.Instances, conf.Duration)
loop:
	for {
		select {
		case <-reportTick.C:
			report(l, registry)
		case <-deadline:
			break loop
		}
	}
	close(stop)
	wg.Wait()

	for _, fs := range fss {
		fs.Unmount()
	}
	report(l, registry)
	l.Info("Done.")
}

// churn applies a random op mix to one instance's caches.
func churn(fs *lfscache.FS, registry metrics.Registry, seed int64, stop <-chan struct{}) {
	r := rand.New(rand.NewSource(seed))
	setTimer := metrics.GetOrRegisterTimer("churn.extent_set", registry)
	natTimer := metrics.GetOrRegisterTimer("churn.nat_set", registry)

	const inodes = 1 << 10
	var nextNID uint32
	for {
		select {
		case <-stop:
			return
		default:
		}
		switch op := r.Float64(); {
		case op < 0.5:
			ino := uint64(r.Intn(inodes))
			setTimer.Time(func() {
				fs.Extents.Set(ino, extent.Extent{
					Logical:  uint64(r.Intn(1 << 16)),
					Len:      uint32(1 + r.Intn(128)),
					Physical: uint64(r.Intn(1 << 20)),
				})
			})
		case op < 0.55:
			// Inode eviction leaves a zombie tree behind.
			fs.Extents.Detach(uint64(r.Intn(inodes)))
		case op < 0.8:
			nextNID++
			nid := nextNID
			natTimer.Time(func() { fs.NAT.Set(nid, uint64(r.Intn(1<<20))) })
			if r.Intn(4) == 0 {
				fs.NAT.SetDirty(nid)
			}
			if fs.NAT.ExcessDirty() {
				fs.NAT.Flush()
			}
		default:
			if r.Intn(2) == 0 {
				fs.FreeNIDs.Free(uint32(r.Intn(1 << 20)))
			} else {
				fs.FreeNIDs.Alloc()
			}
		}
	}
}

// pressure plays the host reclaim framework role.
func pressure(l log.Logger, shr *shrink.Shrinker, conf *Config, stop <-chan struct{}) {
	tick := time.NewTicker(conf.PressureEvery)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
		}
		count := shr.Count()
		if count <= conf.HighWatermark {
			continue
		}
		freed := shr.Scan(conf.ScanTarget)
		l.Debugf("pressure: reclaimable %v, freed %v", count, freed)
	}
}

func report(l log.Logger, registry metrics.Registry) {
	registry.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Counter:
			l.Infof("%s: %v", name, m.Count())
		case metrics.Meter:
			s := m.Snapshot()
			l.Infof("%s: count %v rate1 %.1f/s", name, s.Count(), s.Rate1())
		case metrics.Timer:
			s := m.Snapshot()
			l.Infof("%s: count %v mean %v", name, s.Count(), time.Duration(s.Mean()))
		}
	})
}
