package pipeline_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/logger"
	"github.com/dicomdex/dicomdex/pkg/metadata"
	"github.com/dicomdex/dicomdex/pkg/metadata/sqlite"
	"github.com/dicomdex/dicomdex/pkg/pipeline"
	testutils "github.com/dicomdex/dicomdex/pkg/utils/test"
	"github.com/dicomdex/dicomdex/pkg/vector"
)

const testType = "lumbar_disc"

// harness wires a pipeline against a real sqlite metadata store and in-memory
// test doubles for everything else.
type harness struct {
	pipeline  *pipeline.Pipeline
	store     metadata.Store
	index     *testutils.MemoryIndex
	extractor *testutils.MockExtractor
	reader    *testutils.StubTagReader
	events    *testutils.RecordingPublisher
	sourceDir string
	dataDir   string
}

func newHarness() *harness {
	store, err := sqlite.NewStore(":memory:", logger.New(logger.WithWriter(io.Discard)))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(store.Close)

	h := &harness{
		store:     store,
		index:     testutils.NewMemoryIndex(),
		extractor: testutils.NewMockExtractor(),
		reader:    testutils.NewStubTagReader(),
		events:    testutils.NewRecordingPublisher(),
		sourceDir: GinkgoT().TempDir(),
		dataDir:   GinkgoT().TempDir(),
	}

	openIndex := func(_ context.Context, fresh bool) (vector.Index, error) {
		if fresh {
			h.index.IDs = nil
			h.index.Vectors = nil
		}
		return h.index, nil
	}

	p, err := pipeline.New(
		pipeline.Config{
			TomographyType:  testType,
			DefaultProtocol: "lumbar disc tomography",
			DataDir:         h.dataDir,
		},
		pipeline.Deps{
			Store:     store,
			Extractor: h.extractor,
			TagReader: h.reader,
			OpenIndex: openIndex,
			Events:    h.events,
			Logger:    logger.New(logger.WithWriter(io.Discard)),
		},
	)
	Expect(err).NotTo(HaveOccurred())
	h.pipeline = p

	return h
}

func testTags(uid string, instance, acquisitions int) dicom.Tags {
	return dicom.Tags{
		SeriesUID:         uid,
		PatientName:       "DOE^JANE",
		PatientSex:        "F",
		PatientBirthDate:  "19700101",
		PatientAge:        "054Y",
		AcquisitionNumber: acquisitions,
		ProtocolName:      "lumbar routine",
		StudyDate:         "20240105",
		StudyTime:         "101500",
		InstitutionName:   "General Hospital",
		InstanceNumber:    instance,
	}
}

// addSeries drops acquisition frame files for one series into the source
// directory and registers their stub tags. File contents carry the UID so the
// mock extractor keys off it.
func (h *harness) addSeries(uid string, frames int) {
	for i := 1; i <= frames; i++ {
		name := uid + "_" + string(rune('0'+i)) + ".dcm"
		path := filepath.Join(h.sourceDir, name)
		Expect(os.WriteFile(path, []byte(uid), 0o644)).To(Succeed())
		h.reader.Tags[name] = testTags(uid, i, frames)
	}
}

var _ = Describe("New", func() {
	It("rejects missing dependencies", func() {
		_, err := pipeline.New(
			pipeline.Config{TomographyType: testType, DataDir: GinkgoT().TempDir()},
			pipeline.Deps{},
		)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty tomography type", func() {
		_, err := pipeline.New(pipeline.Config{DataDir: GinkgoT().TempDir()}, pipeline.Deps{})
		Expect(err).To(MatchError(ContainSubstring("tomography type")))
	})
})

var _ = Describe("Ingest", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	It("ingests a four-frame series end to end", func() {
		h.addSeries("S1", 4)
		h.extractor.Vectors["S1"] = []float32{1, 0, 0}

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ScannedFiles).To(Equal(4))
		Expect(result.SeriesFound).To(Equal(1))
		Expect(result.Ingested).To(Equal(1))
		Expect(result.IndexTotal).To(Equal(int64(1)))

		desc, err := h.store.DescriptionBySeriesUID(ctx, "S1")
		Expect(err).NotTo(HaveOccurred())
		Expect(desc.TomographyType).To(Equal(testType))
		Expect(desc.AcquisitionCount).To(Equal(4))

		paths, err := h.store.PathsBySeriesPrefix(ctx, "S1")
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(HaveLen(4))

		Expect(h.index.IDs).To(Equal([]int64{desc.IndexID}))
		Expect(h.index.Vectors[0]).To(Equal([]float32{1, 0, 0}))

		// Files land under the data root at their recorded relative paths.
		for _, rec := range paths {
			_, err := os.Stat(filepath.Join(h.dataDir, rec.RelativePath))
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("never re-embeds an already ingested series", func() {
		h.addSeries("S1", 4)

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ingested).To(BeZero())
		Expect(result.Duplicates).To(Equal(1))
		Expect(result.IndexTotal).To(Equal(int64(1)))

		Expect(h.index.IDs).To(HaveLen(1))
		Expect(h.extractor.Calls).To(HaveLen(1))
	})

	It("skips a series whose path count disagrees with its acquisition count", func() {
		// Three files on disk, but tags claim four acquisitions.
		for i := 1; i <= 3; i++ {
			name := "S1_" + string(rune('0'+i)) + ".dcm"
			path := filepath.Join(h.sourceDir, name)
			Expect(os.WriteFile(path, []byte("S1"), 0o644)).To(Succeed())
			h.reader.Tags[name] = testTags("S1", i, 4)
		}

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ingested).To(BeZero())
		Expect(result.Skipped).To(Equal(1))
		Expect(h.index.IDs).To(BeEmpty())
		Expect(h.extractor.Calls).To(BeEmpty())
	})

	It("ingests both series when one uid is a prefix of the other", func() {
		// DICOM UIDs may legally extend one another; each series must be
		// counted and reconstructed from its exact uid only.
		h.addSeries("1.2.3", 2)
		h.addSeries("1.2.34", 2)
		h.extractor.Vectors["1.2.3"] = []float32{1, 0, 0}
		h.extractor.Vectors["1.2.34"] = []float32{0, 1, 0}

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.SeriesFound).To(Equal(2))
		Expect(result.Ingested).To(Equal(2))
		Expect(result.Skipped).To(BeZero())

		short, err := h.store.DescriptionBySeriesUID(ctx, "1.2.3")
		Expect(err).NotTo(HaveOccurred())
		long, err := h.store.DescriptionBySeriesUID(ctx, "1.2.34")
		Expect(err).NotTo(HaveOccurred())

		Expect(h.index.IDs).To(ConsistOf(short.IndexID, long.IndexID))
		for i, id := range h.index.IDs {
			if id == short.IndexID {
				Expect(h.index.Vectors[i]).To(Equal([]float32{1, 0, 0}))
			} else {
				Expect(h.index.Vectors[i]).To(Equal([]float32{0, 1, 0}))
			}
		}
	})

	It("continues past a failing series", func() {
		h.addSeries("S1", 2)
		h.addSeries("S2", 2)
		h.extractor.FailOn = "S1"

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ingested).To(Equal(1))
		Expect(result.Skipped).To(Equal(1))
		Expect(h.index.IDs).To(HaveLen(1))
	})

	It("counts unreadable files without aborting", func() {
		h.addSeries("S1", 2)
		bad := filepath.Join(h.sourceDir, "garbage.dcm")
		Expect(os.WriteFile(bad, []byte("junk"), 0o644)).To(Succeed())

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.UnreadableFiles).To(Equal(1))
		Expect(result.Ingested).To(Equal(1))
	})

	It("skips a series with incomplete required tags", func() {
		name := "S1_1.dcm"
		Expect(os.WriteFile(filepath.Join(h.sourceDir, name), []byte("S1"), 0o644)).To(Succeed())
		tags := testTags("S1", 1, 1)
		tags.PatientName = ""
		h.reader.Tags[name] = tags

		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(Equal(1))
		Expect(h.index.IDs).To(BeEmpty())
	})

	It("keeps metadata when the index batch write fails", func() {
		h.addSeries("S1", 2)
		h.index.FailAdd = true

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).To(HaveOccurred())

		// Metadata writes are not rolled back; a rebuild restores the index.
		_, err = h.store.DescriptionBySeriesUID(ctx, "S1")
		Expect(err).NotTo(HaveOccurred())
		Expect(h.index.IDs).To(BeEmpty())
	})

	It("is a no-op for an empty source directory", func() {
		result, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ScannedFiles).To(BeZero())
		Expect(h.events.Events).To(BeEmpty())
	})

	It("publishes one ingested event per indexed series", func() {
		h.addSeries("S1", 2)
		h.addSeries("S2", 2)

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.events.Events).To(HaveLen(2))
		for _, e := range h.events.Events {
			Expect(e.EventType).To(Equal("dicomdex.series.ingested"))
			Expect(e.TomographyType).To(Equal(testType))
			Expect(e.IndexID).NotTo(BeZero())
		}
	})
})

var _ = Describe("Delete", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	It("removes metadata but leaves the index stale", func() {
		h.addSeries("S1", 2)
		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		result, err := h.pipeline.Delete(ctx, []string{"S1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Deleted).To(Equal(1))

		_, err = h.store.DescriptionBySeriesUID(ctx, "S1")
		var notFound metadata.ErrNotFound
		Expect(errors.As(err, &notFound)).To(BeTrue())

		paths, err := h.store.PathsBySeriesPrefix(ctx, "S1")
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(BeEmpty())

		// The stale vector survives until the next rebuild.
		Expect(h.index.IDs).To(HaveLen(1))
	})

	It("skips unknown series without failing the run", func() {
		result, err := h.pipeline.Delete(ctx, []string{"nope", "also-nope"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Missing).To(Equal(2))
		Expect(result.Deleted).To(BeZero())
	})

	It("publishes deleted events only for removed series", func() {
		h.addSeries("S1", 2)
		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		h.events.Events = nil

		_, err = h.pipeline.Delete(ctx, []string{"S1", "ghost"})
		Expect(err).NotTo(HaveOccurred())

		Expect(h.events.TypesSeen()).To(Equal([]string{"dicomdex.series.deleted"}))
		Expect(h.events.Events[0].SeriesUID).To(Equal("S1"))
	})
})

var _ = Describe("Rebuild", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	It("produces an empty index from an empty store", func() {
		result, err := h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Total).To(BeZero())
		Expect(result.Indexed).To(BeZero())
		Expect(result.IndexTotal).To(BeZero())
		Expect(h.index.IDs).To(BeEmpty())
	})

	It("drops deleted series from the index", func() {
		h.addSeries("S1", 2)
		h.addSeries("S2", 2)
		h.extractor.Vectors["S1"] = []float32{1, 0, 0}
		h.extractor.Vectors["S2"] = []float32{0, 1, 0}

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		desc2, err := h.store.DescriptionBySeriesUID(ctx, "S2")
		Expect(err).NotTo(HaveOccurred())

		_, err = h.pipeline.Delete(ctx, []string{"S1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(h.index.IDs).To(HaveLen(2))

		result, err := h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Indexed).To(Equal(1))
		Expect(result.IndexTotal).To(Equal(int64(1)))

		Expect(h.index.IDs).To(Equal([]int64{desc2.IndexID}))

		hits, err := h.index.Search(ctx, []float32{1, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(HaveLen(1))
		Expect(hits[0].ID).To(Equal(desc2.IndexID))
	})

	It("keeps both series when one uid is a prefix of the other", func() {
		h.addSeries("1.2.3", 2)
		h.addSeries("1.2.34", 2)
		h.extractor.Vectors["1.2.3"] = []float32{1, 0, 0}
		h.extractor.Vectors["1.2.34"] = []float32{0, 1, 0}

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		result, err := h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Total).To(Equal(2))
		Expect(result.Indexed).To(Equal(2))
		Expect(result.Skipped).To(BeZero())
		Expect(h.index.IDs).To(HaveLen(2))
	})

	It("yields identical rankings when run twice without store changes", func() {
		h.addSeries("S1", 2)
		h.addSeries("S2", 2)
		h.extractor.Vectors["S1"] = []float32{1, 0, 0}
		h.extractor.Vectors["S2"] = []float32{0, 1, 0}

		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		first, err := h.index.Search(ctx, []float32{0.9, 0.1, 0}, 2)
		Expect(err).NotTo(HaveOccurred())

		_, err = h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		second, err := h.index.Search(ctx, []float32{0.9, 0.1, 0}, 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
	})

	It("skips series whose files cannot be re-extracted", func() {
		h.addSeries("S1", 2)
		h.addSeries("S2", 2)
		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())

		h.extractor.FailOn = "S2"
		result, err := h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Total).To(Equal(2))
		Expect(result.Indexed).To(Equal(1))
		Expect(result.Skipped).To(Equal(1))
	})

	It("publishes a rebuilt event with the series count", func() {
		h.addSeries("S1", 2)
		_, err := h.pipeline.Ingest(ctx, h.sourceDir)
		Expect(err).NotTo(HaveOccurred())
		h.events.Events = nil

		_, err = h.pipeline.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.events.TypesSeen()).To(Equal([]string{"dicomdex.index.rebuilt"}))
		Expect(h.events.Events[0].SeriesCount).To(Equal(1))
	})
})
