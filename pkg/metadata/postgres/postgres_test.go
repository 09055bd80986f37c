package postgres_test

import (
	"context"
	"io"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dicomdex/dicomdex/pkg/logger"
	"github.com/dicomdex/dicomdex/pkg/metadata"
	"github.com/dicomdex/dicomdex/pkg/metadata/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips
// the test.
func connStr() string {
	dsn := os.Getenv("DICOMDEX_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("DICOMDEX_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Store", func() {
	var (
		store *postgres.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		store, err = postgres.NewStore(ctx, dsn, logger.New(logger.WithWriter(io.Discard)))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	It("round-trips a description record", func() {
		rec := &metadata.DescriptionRecord{
			SeriesUID:        "pg-uid-1",
			TomographyType:   "lumbar_disc",
			PatientName:      "DOE^JOHN",
			PatientSex:       "M",
			PatientBirth:     "19800101",
			AcquisitionCount: 4,
			StudyDate:        "20250813",
			StudyTime:        "091500",
		}
		defer func() { _ = store.DeleteSeries(ctx, "pg-uid-1") }()

		id, err := store.CreateDescription(ctx, rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(BeNumerically(">", 0))

		got, err := store.DescriptionByIndexID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SeriesUID).To(Equal("pg-uid-1"))
	})

	It("maps unique violations to ErrDuplicate", func() {
		rec := &metadata.DescriptionRecord{
			SeriesUID:        "pg-uid-dup",
			TomographyType:   "lumbar_disc",
			PatientName:      "DOE^JOHN",
			PatientSex:       "M",
			PatientBirth:     "19800101",
			AcquisitionCount: 4,
			StudyDate:        "20250813",
			StudyTime:        "091500",
		}
		defer func() { _ = store.DeleteSeries(ctx, "pg-uid-dup") }()

		_, err := store.CreateDescription(ctx, rec)
		Expect(err).NotTo(HaveOccurred())

		_, err = store.CreateDescription(ctx, rec)
		Expect(err).To(BeAssignableToTypeOf(metadata.ErrDuplicate{}))
	})
})
