// Package lfscache composes the in-memory cache layer of one mounted
// log structured filesystem instance and hooks it up to the process
// wide shrinker.
package lfscache

import (
	"github.com/facebookgo/stackerr"

	"github.com/lfskit/lfscache/extent"
	"github.com/lfskit/lfscache/log"
	"github.com/lfskit/lfscache/node"
	"github.com/lfskit/lfscache/shrink"
	"github.com/lfskit/lfscache/tunable"
)

// Tunable names, the sysfs attribute equivalents.
const (
	TunableMaxFreeNIDs    = "max_free_nids"
	TunableDirtyNATsRatio = "dirty_nats_ratio"
)

const (
	DefaultMaxFreeNIDs    = 512
	DefaultDirtyNATsRatio = 10 // percent
)

type Config struct {
	Name string
	// Zero means default.
	MaxFreeNIDs    int64
	DirtyNATsRatio int64
}

// FS is one mounted filesystem instance's cache bundle.
type FS struct {
	log  log.Logger
	name string
	shr  *shrink.Shrinker
	inst *shrink.Instance

	Extents  *extent.Cache
	NAT      *node.NATCache
	FreeNIDs *node.FreeNIDs
	Tunables *tunable.Table
}

// Mount builds the instance caches and joins the shrinker. Joining is
// the last step: the instance must not be visible to reclaim before its
// caches exist.
func Mount(l log.Logger, shr *shrink.Shrinker, conf Config) (*FS, error) {
	if conf.Name == "" {
		return nil, stackerr.New("mount: empty instance name")
	}
	maxFreeNIDs := tunable.New(TunableMaxFreeNIDs, DefaultMaxFreeNIDs, 0, 1<<20)
	dirtyRatio := tunable.New(TunableDirtyNATsRatio, DefaultDirtyNATsRatio, 0, 100)
	if conf.MaxFreeNIDs != 0 {
		if err := maxFreeNIDs.Set(conf.MaxFreeNIDs); err != nil {
			return nil, stackerr.Wrap(err)
		}
	}
	if conf.DirtyNATsRatio != 0 {
		if err := dirtyRatio.Set(conf.DirtyNATsRatio); err != nil {
			return nil, stackerr.Wrap(err)
		}
	}

	fsLog := l.WithFields(log.Fields{"fs": conf.Name})
	fs := &FS{
		log:      fsLog,
		name:     conf.Name,
		shr:      shr,
		Extents:  extent.NewCache(fsLog),
		Tunables: tunable.NewTable(maxFreeNIDs, dirtyRatio),
	}
	fs.NAT = node.NewNATCache(fsLog, dirtyRatio)
	fs.FreeNIDs = node.NewFreeNIDs(fsLog, maxFreeNIDs)
	fs.inst = shrink.NewInstance(conf.Name, shrink.Caches{
		Extent:  fs.Extents,
		NAT:     fs.NAT,
		FreeNID: fs.FreeNIDs,
	})
	shr.Join(fs.inst)
	fs.log.Info("mounted")
	return fs, nil
}

// Unmount withdraws the instance from reclaim and drains its extent
// cache. The unmount gate is held across Leave so an in flight Count or
// Scan finishes with this instance before teardown proceeds.
func (fs *FS) Unmount() {
	fs.inst.BeginUnmount()
	fs.shr.Leave(fs.inst)
	fs.inst.EndUnmount()
	fs.log.Info("unmounted")
}

func (fs *FS) Name() string { return fs.name }

func (fs *FS) Instance() *shrink.Instance { return fs.inst }
