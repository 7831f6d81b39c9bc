package sectable_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/sectable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Collate", func() {
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
		sectable.SetCollatePreSwapHook(nil)
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should remove duplicate records", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())
		Expect(subject.Insert(k, []byte("world"))).To(Succeed())
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())

		Expect(subject.Collate(64)).To(Succeed())
		Expect(collect(subject, k, sectable.MatchExact)).To(Equal([]string{"hello", "world"}))
	})

	It("should drop records above the length cap", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("tiny"))).To(Succeed())
		Expect(subject.Insert(k, make([]byte, 100))).To(Succeed())

		Expect(subject.Collate(64)).To(Succeed())
		Expect(collect(subject, k, sectable.MatchExact)).To(Equal([]string{"tiny"}))
	})

	It("should validate the length cap", func() {
		Expect(subject.Collate(3)).To(MatchError(sectable.ErrLengthMismatch))
		Expect(subject.Collate(sectable.MaxRecordLen + 1)).To(MatchError(sectable.ErrLengthMismatch))

		fixed, err := store.CreateTable("db", "fixed", 4, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(fixed.Collate(64)).To(MatchError(sectable.ErrLengthMismatch))
		Expect(fixed.Collate(5)).To(Succeed())
	})

	It("should reclaim unlinked lists", func() {
		Expect(subject.Insert(key("aabbccdd"), []byte("gone"))).To(Succeed())
		Expect(subject.Insert(key("aabbccee"), []byte("kept"))).To(Succeed())

		_, err := subject.Unlink(key("aabbccdd"))
		Expect(err).NotTo(HaveOccurred())

		Expect(subject.Collate(64)).To(Succeed())
		Expect(tableContents(subject)).To(Equal(map[string][]string{
			"aabbccee": {"kept"},
		}))
	})

	It("should remove sectors left empty", func() {
		Expect(subject.Insert(key("aabbccdd"), []byte("gone"))).To(Succeed())
		_, err := subject.Unlink(key("aabbccdd"))
		Expect(err).NotTo(HaveOccurred())

		Expect(subject.Collate(64)).To(Succeed())

		_, err = os.Stat(filepath.Join(subject.Path(), "aa.sct"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should fail on missing tables", func() {
		Expect(os.RemoveAll(subject.Path())).To(Succeed())
		Expect(subject.Collate(64)).To(MatchError(sectable.ErrInvalidTable))
	})

	It("should discard stale staging sectors of interrupted runs", func() {
		Expect(subject.Insert(key("aabbccdd"), []byte("data"))).To(Succeed())

		// fake leftovers from a run that died between build and swap
		Expect(os.WriteFile(filepath.Join(subject.Path(), "aa.tmp"), []byte("junk"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(subject.Path(), "ff.tmp"), []byte("junk"), 0644)).To(Succeed())

		Expect(subject.Collate(64)).To(Succeed())
		Expect(collect(subject, key("aabbccdd"), sectable.MatchExact)).To(Equal([]string{"data"}))
		Expect(collect(subject, key("ffffffff"), sectable.MatchExact)).To(BeEmpty())

		tmps, err := filepath.Glob(filepath.Join(subject.Path(), "*.tmp"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tmps).To(BeEmpty())
	})

	It("should abort on corrupt sectors without touching healthy ones", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())
		Expect(subject.Insert(key("bb000001"), []byte("doomed"))).To(Succeed())

		before, err := os.ReadFile(filepath.Join(subject.Path(), "aa.sct"))
		Expect(err).NotTo(HaveOccurred())

		f, err := os.OpenFile(filepath.Join(subject.Path(), "bb.sct"), os.O_WRONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteAt([]byte("XXXX"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Expect(subject.Collate(64)).To(HaveOccurred())

		after, err := os.ReadFile(filepath.Join(subject.Path(), "aa.sct"))
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
		Expect(collect(subject, k, sectable.MatchExact)).To(Equal([]string{"hello", "hello"}))

		tmps, err := filepath.Glob(filepath.Join(subject.Path(), "*.tmp"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tmps).To(BeEmpty())
	})

	It("should leave the original sectors in place until the swap", func() {
		k := key("aabbccdd")
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())
		Expect(subject.Insert(k, []byte("hello"))).To(Succeed())

		live := filepath.Join(subject.Path(), "aa.sct")
		before, err := os.ReadFile(live)
		Expect(err).NotTo(HaveOccurred())

		sectable.SetCollatePreSwapHook(func() {
			defer GinkgoRecover()
			Expect(filepath.Join(subject.Path(), "aa.tmp")).To(BeAnExistingFile())

			during, err := os.ReadFile(live)
			Expect(err).NotTo(HaveOccurred())
			Expect(during).To(Equal(before))
		})

		Expect(subject.Collate(64)).To(Succeed())
		Expect(collect(subject, k, sectable.MatchExact)).To(Equal([]string{"hello"}))

		tmps, err := filepath.Glob(filepath.Join(subject.Path(), "*.tmp"))
		Expect(err).NotTo(HaveOccurred())
		Expect(tmps).To(BeEmpty())
	})
})

var _ = Describe("Delete", func() {
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

		Expect(subject.Insert(key("aa010101"), []byte("one"))).To(Succeed())
		Expect(subject.Insert(key("aa020202"), []byte("two"))).To(Succeed())
		Expect(subject.Insert(key("aa030303"), []byte("three"))).To(Succeed())
		Expect(subject.Insert(key("bb010101"), []byte("apart"))).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should remove all records of the listed keys", func() {
		Expect(subject.Delete([][]byte{key("aa030303"), key("aa010101")}, 64)).To(Succeed())

		Expect(tableContents(subject)).To(Equal(map[string][]string{
			"aa020202": {"two"},
			"bb010101": {"apart"},
		}))
	})

	It("should reject empty batches", func() {
		Expect(subject.Delete(nil, 64)).To(MatchError(sectable.ErrInvalidKey))
	})

	It("should reject keys of the wrong length", func() {
		Expect(subject.Delete([][]byte{key("aa0101")}, 64)).To(MatchError(sectable.ErrInvalidKey))
	})

	It("should reject batches spanning first bytes", func() {
		Expect(subject.Delete([][]byte{key("aa010101"), key("bb010101")}, 64)).To(MatchError(sectable.ErrInvalidKey))
	})
})

var _ = Describe("MergeInto", func() {
	var dir string
	var store *sectable.Store
	var src, dst *sectable.Table

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sectable-test")
		Expect(err).NotTo(HaveOccurred())
		store, err = sectable.Open(dir)
		Expect(err).NotTo(HaveOccurred())
		src, err = store.CreateTable("db", "src", 4, 0)
		Expect(err).NotTo(HaveOccurred())
		dst, err = store.CreateTable("db", "dst", 4, 0)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should move surviving records and erase the source", func() {
		Expect(src.Insert(key("aa010101"), []byte("v1"))).To(Succeed())
		Expect(src.Insert(key("aa020202"), []byte("v2"))).To(Succeed())
		Expect(dst.Insert(key("aa020202"), []byte("v2"))).To(Succeed())
		Expect(dst.Insert(key("bb010101"), []byte("v3"))).To(Succeed())

		Expect(src.MergeInto(dst, 64)).To(Succeed())

		_, err := store.OpenTable("db", "src")
		Expect(err).To(MatchError(sectable.ErrInvalidTable))

		Expect(dst.Collate(64)).To(Succeed())
		Expect(tableContents(dst)).To(Equal(map[string][]string{
			"aa010101": {"v1"},
			"aa020202": {"v2"},
			"bb010101": {"v3"},
		}))
	})

	It("should reject merging a table into itself", func() {
		Expect(src.Insert(key("aa010101"), []byte("v1"))).To(Succeed())

		Expect(src.MergeInto(src, 64)).To(MatchError(sectable.ErrIncompatibleTables))

		self, err := store.OpenTable("db", "src")
		Expect(err).NotTo(HaveOccurred())
		Expect(src.MergeInto(self, 64)).To(MatchError(sectable.ErrIncompatibleTables))

		Expect(collect(src, key("aa010101"), sectable.MatchExact)).To(Equal([]string{"v1"}))
	})

	It("should reject incompatible destinations", func() {
		other, err := store.CreateTable("db", "other", 6, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(src.MergeInto(other, 64)).To(MatchError(sectable.ErrIncompatibleTables))

		fixed, err := store.CreateTable("db", "fixed", 4, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(src.MergeInto(fixed, 8)).To(MatchError(sectable.ErrIncompatibleTables))
	})

	It("should fail on missing destinations", func() {
		Expect(os.RemoveAll(dst.Path())).To(Succeed())
		Expect(src.MergeInto(dst, 64)).To(MatchError(sectable.ErrInvalidTable))
	})
})
