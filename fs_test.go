package lfscache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/lfskit/lfscache/extent"
	"github.com/lfskit/lfscache/shrink"
)

var _ = Describe("FS", func() {
	var shr *shrink.Shrinker
	BeforeEach(func() {
		shr = shrink.New(testLogger())
	})

	mount := func(conf Config) *FS {
		fs, err := Mount(testLogger(), shr, conf)
		Expect(err).To(BeNil())
		return fs
	}

	fillExtents := func(fs *FS, n int) {
		for i := 0; i < n; i++ {
			fs.Extents.Set(uint64(i), extent.Extent{
				Logical:  uint64(i * 10),
				Len:      4,
				Physical: uint64(i * 100),
			})
		}
	}

	Context("mount", func() {
		It("rejects empty instance name", func() {
			_, err := Mount(testLogger(), shr, Config{})
			Expect(err).NotTo(BeNil())
		})

		It("rejects out of range tunable overrides", func() {
			_, err := Mount(testLogger(), shr, Config{Name: "x", DirtyNATsRatio: 150})
			Expect(err).NotTo(BeNil())
			Expect(shr.Size()).To(BeZero(), "failed mount must not join")
		})

		It("applies tunable overrides", func() {
			fs := mount(Config{Name: "x", MaxFreeNIDs: 3, DirtyNATsRatio: 25})
			Expect(fs.Tunables.Snapshot()).To(Equal(map[string]int64{
				TunableMaxFreeNIDs:    3,
				TunableDirtyNATsRatio: 25,
			}))
		})

		It("joins the shrinker with all three caches wired", func() {
			fs := mount(Config{Name: "x", MaxFreeNIDs: 0})
			fillExtents(fs, 2)
			fs.NAT.Set(1, 0xA0)
			for i := uint32(0); i < DefaultMaxFreeNIDs+3; i++ {
				fs.FreeNIDs.Free(i + 1)
			}
			Expect(shr.Count()).To(Equal(int64(2 + 1 + 3)))
		})
	})

	Context("unmount", func() {
		It("drains extents and leaves the registry", func() {
			fs := mount(Config{Name: "x"})
			other := mount(Config{Name: "y"})
			fillExtents(fs, 8)
			fillExtents(other, 1)

			fs.Unmount()

			Expect(fs.Extents.Count()).To(BeZero(), "extent cache drained on leave")
			Expect(shr.Size()).To(Equal(1))
			Expect(shr.Count()).To(Equal(int64(1)), "only the remaining instance is counted")
		})
	})

	Context("reclaim end to end", func() {
		It("scans real caches fairly across instances", func() {
			a := mount(Config{Name: "a"})
			b := mount(Config{Name: "b"})
			fillExtents(a, 10)
			fillExtents(b, 10)

			pre := shr.Count()
			Expect(pre).To(Equal(int64(20)))
			freed := shr.Scan(10)
			Expect(freed).To(Equal(int64(10)))
			Expect(shr.Count()).To(Equal(pre - freed))
			Expect(a.Extents.Count()).To(Equal(int64(5)), "half budget per instance")
			Expect(b.Extents.Count()).To(Equal(int64(5)))
		})

		It("cascades to NAT entries once extents are exhausted", func() {
			a := mount(Config{Name: "a"})
			fillExtents(a, 10)
			for i := uint32(1); i <= 10; i++ {
				a.NAT.Set(i, uint64(i))
			}

			// Tier 1 asks for 10 extents and fully drains them; the
			// remainder comes from clean NAT entries.
			Expect(shr.Scan(20)).To(Equal(int64(20)))
			Expect(a.Extents.Count()).To(BeZero())
			Expect(a.NAT.Count()).To(BeZero())
		})
	})
})
