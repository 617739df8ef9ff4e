package node

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("NATCache", func() {
	var c *NATCache
	BeforeEach(func() {
		c = NewNATCache(testLogger(), testDirtyRatio(10))
	})

	It("is empty initially", func() {
		Expect(c.Count()).To(BeZero())
		Expect(c.Shrink(5)).To(BeZero())
	})

	Context("set and lookup", func() {
		It("caches addresses", func() {
			c.Set(1, 0xA0)
			addr, ok := c.Lookup(1)
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(uint64(0xA0)))
			_, ok = c.Lookup(2)
			Expect(ok).To(BeFalse())
		})

		It("updates an existing entry without growing", func() {
			c.Set(1, 0xA0)
			c.Set(1, 0xB0)
			Expect(c.Len()).To(Equal(1))
			addr, _ := c.Lookup(1)
			Expect(addr).To(Equal(uint64(0xB0)))
		})
	})

	Context("dirty entries", func() {
		It("counts only clean entries as reclaimable", func() {
			c.Set(1, 0xA0)
			c.Set(2, 0xB0)
			Expect(c.SetDirty(1)).To(BeTrue())
			Expect(c.Count()).To(Equal(int64(1)))
			Expect(c.Dirty()).To(Equal(int64(1)))
		})

		It("never evicts a dirty entry", func() {
			c.Set(1, 0xA0)
			c.SetDirty(1)
			Expect(c.Shrink(10)).To(BeZero())
			addr, ok := c.Lookup(1)
			Expect(ok).To(BeTrue())
			Expect(addr).To(Equal(uint64(0xA0)))
		})

		It("ignores marking an absent or already dirty entry", func() {
			Expect(c.SetDirty(1)).To(BeFalse())
			c.Set(1, 0xA0)
			Expect(c.SetDirty(1)).To(BeTrue())
			Expect(c.SetDirty(1)).To(BeTrue())
			Expect(c.Dirty()).To(Equal(int64(1)))
		})

		It("makes flushed entries reclaimable again", func() {
			c.Set(1, 0xA0)
			c.Set(2, 0xB0)
			c.SetDirty(1)
			c.SetDirty(2)
			Expect(c.Flush()).To(Equal(int64(2)))
			Expect(c.Dirty()).To(BeZero())
			Expect(c.Count()).To(Equal(int64(2)))
			Expect(c.Shrink(2)).To(Equal(int64(2)))
		})

		It("reports excess dirty by the configured ratio", func() {
			c = NewNATCache(testLogger(), testDirtyRatio(50))
			c.Set(1, 1)
			c.Set(2, 2)
			Expect(c.ExcessDirty()).To(BeFalse())
			c.SetDirty(1)
			Expect(c.ExcessDirty()).To(BeFalse(), "at the ratio, not over it")
			c.SetDirty(2)
			Expect(c.ExcessDirty()).To(BeTrue())
		})
	})

	Context("shrink", func() {
		It("evicts coldest clean entries first", func() {
			c.Set(1, 1)
			c.Set(2, 2)
			c.Set(3, 3)
			_, _ = c.Lookup(1) // refresh 1
			Expect(c.cleanNIDs()).To(Equal([]uint32{2, 3, 1}))

			Expect(c.Shrink(2)).To(Equal(int64(2)))
			Expect(c.cleanNIDs()).To(Equal([]uint32{1}))
			_, ok := c.Lookup(2)
			Expect(ok).To(BeFalse())
		})

		It("frees at most the clean population", func() {
			c.Set(1, 1)
			c.Set(2, 2)
			c.SetDirty(2)
			Expect(c.Shrink(10)).To(Equal(int64(1)))
			Expect(c.Len()).To(Equal(1))
		})
	})
})
