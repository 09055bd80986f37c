// Package metadata defines the relational persistence contract for imaging
// series descriptions and file paths. One store is shared across all
// tomography types; each create/delete call runs in its own transaction so a
// failed item never aborts a surrounding batch.
package metadata

import "context"

// DescriptionRecord describes one imaging series. IndexID is assigned by the
// store on insert and doubles as the series' identity in the vector index; it
// is immutable once assigned.
type DescriptionRecord struct {
	IndexID         int64  `json:"index_id"`
	SeriesUID       string `json:"series_uid"`
	TomographyType  string `json:"tomography_type"`
	PatientName     string `json:"patient_name"`
	PatientSex      string `json:"patient_sex"`
	PatientBirth    string `json:"patient_birth_date"`
	PatientAge      string `json:"patient_age"`
	AcquisitionCount int   `json:"acquisition_count"`
	ProtocolName    string `json:"protocol_name"`
	StudyDate       string `json:"study_date"`
	StudyTime       string `json:"study_time"`
	InstitutionName string `json:"institution_name"`
}

// PathRecord locates one stored image file within a series. The pair
// (SeriesUID, InstanceNumber) is unique.
type PathRecord struct {
	SeriesUID      string `json:"series_uid"`
	InstanceNumber int    `json:"instance_number"`
	RelativePath   string `json:"relative_path"`
}

// Store is the metadata persistence contract.
//
// CreateDescription assigns IndexID via store-side autoincrement; callers may
// rely only on uniqueness and monotonic issuance order. DeleteSeries removes
// all PathRecords for the series and then the DescriptionRecord inside a
// single transaction that is rolled back entirely on any failure.
type Store interface {
	// CreatePath persists one PathRecord in its own transaction.
	// Returns ErrDuplicate if the (SeriesUID, InstanceNumber) pair exists.
	CreatePath(ctx context.Context, rec PathRecord) error

	// CreateDescription persists one DescriptionRecord in its own transaction
	// and returns the assigned IndexID. Returns ErrDuplicate if the SeriesUID
	// already exists.
	CreateDescription(ctx context.Context, rec *DescriptionRecord) (int64, error)

	// PathsBySeriesUID returns the PathRecords whose SeriesUID matches
	// exactly, ordered by instance number. Pipelines reconstruct series from
	// this set; UIDs may legally prefix one another, so a prefix match is not
	// equivalent.
	PathsBySeriesUID(ctx context.Context, seriesUID string) ([]PathRecord, error)

	// PathsBySeriesPrefix returns all PathRecords whose SeriesUID starts with
	// the given prefix, ordered by instance number.
	PathsBySeriesPrefix(ctx context.Context, seriesUID string) ([]PathRecord, error)

	// DescriptionByIndexID returns the record with the given IndexID, or
	// ErrNotFound.
	DescriptionByIndexID(ctx context.Context, id int64) (*DescriptionRecord, error)

	// DescriptionBySeriesUID returns the record with the given SeriesUID, or
	// ErrNotFound.
	DescriptionBySeriesUID(ctx context.Context, uid string) (*DescriptionRecord, error)

	// ListDescriptions returns every DescriptionRecord of the given tomography
	// type, ordered by IndexID.
	ListDescriptions(ctx context.Context, tomographyType string) ([]DescriptionRecord, error)

	// DeleteSeries removes the series' paths and description atomically.
	// Returns ErrNotFound if no description exists for the UID.
	DeleteSeries(ctx context.Context, seriesUID string) error

	// Close closes the store and releases any resources.
	Close() error
}
