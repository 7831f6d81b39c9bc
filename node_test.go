package sectable_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/sectable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	var dir string
	var store *sectable.Store
	var subject *sectable.Table

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sectable-test")
		Expect(err).NotTo(HaveOccurred())
		store, err = sectable.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		subject, err = store.CreateTable("db", "main", 4, 0)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should insert and fetch records in append order", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())
		Expect(subject.Insert(k, []byte("world"))).To(Succeed())
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())

		Expect(collect(subject, k, sectable.MatchExact)).To(Equal([]string{"hello", "world", "hello"}))

		n, err := subject.Fetch(k, sectable.MatchExact, func(_, _ []byte) bool { return true })
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
	})

	It("should use only the first KeyLen bytes of longer keys", func() {
		Expect(subject.Insert(key("aabbccdd0102"), []byte("data"))).To(Succeed())
		Expect(collect(subject, key("aabbccdd"), sectable.MatchExact)).To(Equal([]string{"data"}))
	})

	It("should reject keys shorter than KeyLen", func() {
		Expect(subject.Insert(key("aabbcc"), []byte("data"))).To(MatchError(sectable.ErrInvalidKey))

		_, err := subject.Fetch(key("aabbcc"), sectable.MatchExact, nil)
		Expect(err).To(MatchError(sectable.ErrInvalidKey))
	})

	It("should keep sectors independent", func() {
		Expect(subject.Insert(key("aa000001"), []byte("first"))).To(Succeed())
		Expect(subject.Insert(key("bb000001"), []byte("second"))).To(Succeed())

		Expect(filepath.Join(dir, "db", "main", "aa.sct")).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "db", "main", "bb.sct")).To(BeAnExistingFile())

		Expect(collect(subject, key("aa000001"), sectable.MatchExact)).To(Equal([]string{"first"}))
		Expect(collect(subject, key("bb000001"), sectable.MatchExact)).To(Equal([]string{"second"}))
	})

	It("should return no records for unknown keys", func() {
		Expect(subject.Insert(key("aabbccdd"), []byte("data"))).To(Succeed())

		Expect(collect(subject, key("aabbccee"), sectable.MatchExact)).To(BeEmpty())
		Expect(collect(subject, key("ffeeddcc"), sectable.MatchExact)).To(BeEmpty())
	})

	It("should enforce fixed record lengths", func() {
		fixed, err := store.CreateTable("db", "fixed", 4, 5)
		Expect(err).NotTo(HaveOccurred())

		k := key("aabbccdd")
		Expect(fixed.Insert(k, []byte("data"))).To(MatchError(sectable.ErrSizeMismatch))
		Expect(fixed.Insert(k, []byte("exact"))).To(Succeed())
		Expect(collect(fixed, k, sectable.MatchExact)).To(Equal([]string{"exact"}))
	})

	It("should reject oversized payloads", func() {
		big := make([]byte, sectable.MaxRecordLen+1)
		Expect(subject.Insert(key("aabbccdd"), big)).To(MatchError(sectable.ErrRecordTooLarge))
	})

	It("should stop fetching when visit returns false", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("one"))).To(Succeed())
		Expect(subject.Insert(k, []byte("two"))).To(Succeed())
		Expect(subject.Insert(k, []byte("three"))).To(Succeed())

		var got []string
		n, err := subject.Fetch(k, sectable.MatchExact, func(_, payload []byte) bool {
			got = append(got, string(payload))
			return false
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(got).To(Equal([]string{"one"}))
	})

	Describe("with longer keys", func() {
		var wide *sectable.Table

		BeforeEach(func() {
			var err error
			wide, err = store.CreateTable("db", "wide", 6, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(wide.Insert(key("aabbccdd0102"), []byte("one"))).To(Succeed())
			Expect(wide.Insert(key("aabbccdd0304"), []byte("two"))).To(Succeed())
			Expect(wide.Insert(key("aabbccee0101"), []byte("other"))).To(Succeed())
		})

		It("should match full keys exactly", func() {
			Expect(collect(wide, key("aabbccdd0102"), sectable.MatchExact)).To(Equal([]string{"one"}))
			Expect(collect(wide, key("aabbccdd0304"), sectable.MatchExact)).To(Equal([]string{"two"}))
			Expect(collect(wide, key("aabbccdd0909"), sectable.MatchExact)).To(BeEmpty())
		})

		It("should match all lists sharing a 4-byte prefix", func() {
			Expect(collect(wide, key("aabbccdd"), sectable.MatchPrefix)).To(Equal([]string{"one", "two"}))
			Expect(collect(wide, key("aabbccee"), sectable.MatchPrefix)).To(Equal([]string{"other"}))
		})

		It("should require a 4-byte key for prefix matches", func() {
			_, err := wide.Fetch(key("aabbccdd0102"), sectable.MatchPrefix, nil)
			Expect(err).To(MatchError(sectable.ErrInvalidKey))
		})

		It("should unlink every key sharing the prefix", func() {
			ok, err := wide.Unlink(key("aabbccdd"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			Expect(collect(wide, key("aabbccdd0102"), sectable.MatchExact)).To(BeEmpty())
			Expect(collect(wide, key("aabbccdd0304"), sectable.MatchExact)).To(BeEmpty())
			Expect(collect(wide, key("aabbccee0101"), sectable.MatchExact)).To(Equal([]string{"other"}))
		})
	})

	Describe("Unlink", func() {
		BeforeEach(func() {
			Expect(subject.Insert(key("aabbccdd"), []byte("one"))).To(Succeed())
			Expect(subject.Insert(key("aabbccdd"), []byte("two"))).To(Succeed())
			Expect(subject.Insert(key("aabbccee"), []byte("keep"))).To(Succeed())
		})

		It("should detach the list", func() {
			ok, err := subject.Unlink(key("aabbccdd"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			Expect(collect(subject, key("aabbccdd"), sectable.MatchExact)).To(BeEmpty())
			Expect(collect(subject, key("aabbccee"), sectable.MatchExact)).To(Equal([]string{"keep"}))
		})

		It("should report absent lists", func() {
			ok, err := subject.Unlink(key("aabbccdd"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = subject.Unlink(key("aabbccdd"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = subject.Unlink(key("ffeeddcc"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should reject keys that are not exactly 4 bytes", func() {
			_, err := subject.Unlink(key("aabbccddee"))
			Expect(err).To(MatchError(sectable.ErrInvalidKey))
		})

		It("should accept inserts after unlinking", func() {
			_, err := subject.Unlink(key("aabbccdd"))
			Expect(err).NotTo(HaveOccurred())

			Expect(subject.Insert(key("aabbccdd"), []byte("fresh"))).To(Succeed())
			Expect(collect(subject, key("aabbccdd"), sectable.MatchExact)).To(Equal([]string{"fresh"}))
		})
	})
})
