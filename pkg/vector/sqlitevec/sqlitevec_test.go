package sqlitevec_test

import (
	"context"
	"io"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dicomdex/dicomdex/pkg/logger"
	"github.com/dicomdex/dicomdex/pkg/vector"
	"github.com/dicomdex/dicomdex/pkg/vector/sqlitevec"
)

var _ = Describe("Index", func() {
	var (
		ctx context.Context
		log = logger.New(logger.WithWriter(io.Discard))
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Open", func() {
		It("rejects an empty path", func() {
			_, err := sqlitevec.Open(sqlitevec.Config{Dimensions: 4}, log)
			Expect(err).To(MatchError(ContainSubstring("path is required")))
		})

		It("rejects zero dimensions", func() {
			_, err := sqlitevec.Open(sqlitevec.Config{Path: ":memory:"}, log)
			Expect(err).To(MatchError(ContainSubstring("dimensions")))
		})

		It("creates an empty index file in create mode", func() {
			path := filepath.Join(GinkgoT().TempDir(), "test.index.db")
			idx, err := sqlitevec.Open(sqlitevec.Config{Path: path, Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())
			defer idx.Close()

			count, err := idx.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
		})

		It("fails on a missing file in existing mode", func() {
			path := filepath.Join(GinkgoT().TempDir(), "absent.index.db")
			_, err := sqlitevec.Open(sqlitevec.Config{
				Path:       path,
				Dimensions: 4,
				Mode:       sqlitevec.ModeExisting,
			}, log)
			Expect(err).To(MatchError(vector.ErrIndexMissing))
		})

		It("discards existing contents in fresh mode", func() {
			path := filepath.Join(GinkgoT().TempDir(), "rebuild.index.db")

			idx, err := sqlitevec.Open(sqlitevec.Config{Path: path, Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.AddBatch(ctx, []int64{1}, [][]float32{{1, 0, 0, 0}})).To(Succeed())
			Expect(idx.Close()).To(Succeed())

			fresh, err := sqlitevec.Open(sqlitevec.Config{
				Path:       path,
				Dimensions: 4,
				Mode:       sqlitevec.ModeFresh,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			defer fresh.Close()

			count, err := fresh.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
		})
	})

	Describe("AddBatch", func() {
		var idx *sqlitevec.Index

		BeforeEach(func() {
			var err error
			idx, err = sqlitevec.Open(sqlitevec.Config{Path: ":memory:", Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(idx.Close()).To(Succeed())
		})

		It("is a no-op for an empty batch", func() {
			Expect(idx.AddBatch(ctx, nil, nil)).To(Succeed())
		})

		It("rejects mismatched slice lengths", func() {
			err := idx.AddBatch(ctx, []int64{1, 2}, [][]float32{{0, 0, 0, 0}})
			Expect(err).To(MatchError(vector.ErrBatchMismatch))
		})

		It("rejects vectors of the wrong dimensionality", func() {
			err := idx.AddBatch(ctx, []int64{1}, [][]float32{{0, 0}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("stores a batch keyed by the given ids", func() {
			ids := []int64{7, 42, 99}
			vecs := [][]float32{
				{1, 0, 0, 0},
				{0, 1, 0, 0},
				{0, 0, 1, 0},
			}
			Expect(idx.AddBatch(ctx, ids, vecs)).To(Succeed())

			count, err := idx.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(3)))

			hits, err := idx.Search(ctx, []float32{0, 1, 0, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ID).To(Equal(int64(42)))
		})

		It("stores nothing when one insert fails", func() {
			Expect(idx.AddBatch(ctx, []int64{5}, [][]float32{{1, 0, 0, 0}})).To(Succeed())

			// Duplicate rowid 5 makes the second batch fail as a whole.
			err := idx.AddBatch(ctx,
				[]int64{6, 5},
				[][]float32{{0, 1, 0, 0}, {0, 0, 1, 0}},
			)
			Expect(err).To(HaveOccurred())

			count, err := idx.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("Search", func() {
		var idx *sqlitevec.Index

		BeforeEach(func() {
			var err error
			idx, err = sqlitevec.Open(sqlitevec.Config{Path: ":memory:", Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())

			Expect(idx.AddBatch(ctx,
				[]int64{1, 2, 3},
				[][]float32{
					{1, 0, 0, 0},
					{0.9, 0.1, 0, 0},
					{0, 0, 0, 1},
				},
			)).To(Succeed())
		})

		AfterEach(func() {
			Expect(idx.Close()).To(Succeed())
		})

		It("returns hits ordered by ascending distance", func() {
			hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
			Expect(hits[0].ID).To(Equal(int64(1)))
			Expect(hits[1].ID).To(Equal(int64(2)))
			Expect(hits[2].ID).To(Equal(int64(3)))
			Expect(hits[0].Distance).To(BeNumerically("<=", hits[1].Distance))
			Expect(hits[1].Distance).To(BeNumerically("<=", hits[2].Distance))
		})

		It("returns fewer hits than k when the index is smaller", func() {
			hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
		})

		It("rejects a query of the wrong dimensionality", func() {
			_, err := idx.Search(ctx, []float32{1, 0}, 3)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("rejects a non-positive k", func() {
			_, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("persistence", func() {
		It("retains embeddings across reopen", func() {
			path := filepath.Join(GinkgoT().TempDir(), "persist.index.db")

			idx, err := sqlitevec.Open(sqlitevec.Config{Path: path, Dimensions: 4}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.AddBatch(ctx, []int64{11}, [][]float32{{0, 0, 1, 0}})).To(Succeed())
			Expect(idx.Close()).To(Succeed())

			reopened, err := sqlitevec.Open(sqlitevec.Config{
				Path:       path,
				Dimensions: 4,
				Mode:       sqlitevec.ModeExisting,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			hits, err := reopened.Search(ctx, []float32{0, 0, 1, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ID).To(Equal(int64(11)))
		})
	})

	Describe("Interface compliance", func() {
		It("implements vector.Index", func() {
			var _ vector.Index = (*sqlitevec.Index)(nil)
		})
	})
})
