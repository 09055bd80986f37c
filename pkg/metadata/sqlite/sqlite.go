// Package sqlite provides a SQLite-backed metadata store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/dicomdex/dicomdex/pkg/metadata"
)

// Store implements metadata.Store using SQLite via database/sql.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS series_descriptions (
	index_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	series_uid        TEXT    NOT NULL UNIQUE,
	tomography_type   TEXT    NOT NULL,
	patient_name      TEXT    NOT NULL,
	patient_sex       TEXT    NOT NULL,
	patient_birth     TEXT    NOT NULL,
	patient_age       TEXT    NOT NULL DEFAULT '',
	acquisition_count INTEGER NOT NULL,
	protocol_name     TEXT    NOT NULL DEFAULT '',
	study_date        TEXT    NOT NULL,
	study_time        TEXT    NOT NULL,
	institution_name  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_descriptions_type ON series_descriptions(tomography_type);

CREATE TABLE IF NOT EXISTS file_paths (
	series_uid      TEXT    NOT NULL,
	instance_number INTEGER NOT NULL,
	relative_path   TEXT    NOT NULL,
	PRIMARY KEY (series_uid, instance_number)
);
`

// NewStore creates a SQLite-backed metadata store. The dbPath can be a file
// path or ":memory:" for an in-memory database. The schema is created on
// first open.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite serializes writers anyway, and a single pooled connection keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("sqlite metadata store initialized", "db_path", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// CreatePath persists one PathRecord in its own transaction.
func (s *Store) CreatePath(ctx context.Context, rec metadata.PathRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_paths (series_uid, instance_number, relative_path) VALUES (?, ?, ?)`,
		rec.SeriesUID, rec.InstanceNumber, rec.RelativePath,
	)
	if err != nil {
		if isConstraintErr(err) {
			return metadata.ErrDuplicate{Key: fmt.Sprintf("%s-%d", rec.SeriesUID, rec.InstanceNumber)}
		}
		return fmt.Errorf("inserting path %s-%d: %w", rec.SeriesUID, rec.InstanceNumber, err)
	}
	return nil
}

// CreateDescription persists one DescriptionRecord and returns the assigned
// IndexID.
func (s *Store) CreateDescription(ctx context.Context, rec *metadata.DescriptionRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO series_descriptions (
			series_uid, tomography_type, patient_name, patient_sex, patient_birth,
			patient_age, acquisition_count, protocol_name, study_date, study_time,
			institution_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SeriesUID, rec.TomographyType, rec.PatientName, rec.PatientSex,
		rec.PatientBirth, rec.PatientAge, rec.AcquisitionCount, rec.ProtocolName,
		rec.StudyDate, rec.StudyTime, rec.InstitutionName,
	)
	if err != nil {
		if isConstraintErr(err) {
			return 0, metadata.ErrDuplicate{Key: rec.SeriesUID}
		}
		return 0, fmt.Errorf("inserting description %s: %w", rec.SeriesUID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading assigned index id for %s: %w", rec.SeriesUID, err)
	}

	rec.IndexID = id
	return id, nil
}

// PathsBySeriesUID returns the PathRecords whose SeriesUID matches exactly,
// ordered by instance number.
func (s *Store) PathsBySeriesUID(ctx context.Context, seriesUID string) ([]metadata.PathRecord, error) {
	return s.queryPaths(ctx, `
		SELECT series_uid, instance_number, relative_path
		FROM file_paths
		WHERE series_uid = ?
		ORDER BY instance_number`,
		seriesUID,
	)
}

// PathsBySeriesPrefix returns all PathRecords whose SeriesUID starts with the
// given prefix, ordered by instance number.
func (s *Store) PathsBySeriesPrefix(ctx context.Context, seriesUID string) ([]metadata.PathRecord, error) {
	return s.queryPaths(ctx, `
		SELECT series_uid, instance_number, relative_path
		FROM file_paths
		WHERE series_uid LIKE ?
		ORDER BY series_uid, instance_number`,
		seriesUID+"%",
	)
}

func (s *Store) queryPaths(ctx context.Context, query, arg string) ([]metadata.PathRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying paths for %s: %w", arg, err)
	}
	defer rows.Close()

	var records []metadata.PathRecord
	for rows.Next() {
		var rec metadata.PathRecord
		if err := rows.Scan(&rec.SeriesUID, &rec.InstanceNumber, &rec.RelativePath); err != nil {
			return nil, fmt.Errorf("scanning path record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating path records: %w", err)
	}

	return records, nil
}

const descriptionColumns = `
	index_id, series_uid, tomography_type, patient_name, patient_sex,
	patient_birth, patient_age, acquisition_count, protocol_name,
	study_date, study_time, institution_name`

func scanDescription(row interface{ Scan(...any) error }) (*metadata.DescriptionRecord, error) {
	var rec metadata.DescriptionRecord
	err := row.Scan(
		&rec.IndexID, &rec.SeriesUID, &rec.TomographyType, &rec.PatientName,
		&rec.PatientSex, &rec.PatientBirth, &rec.PatientAge, &rec.AcquisitionCount,
		&rec.ProtocolName, &rec.StudyDate, &rec.StudyTime, &rec.InstitutionName,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DescriptionByIndexID returns the record with the given IndexID.
func (s *Store) DescriptionByIndexID(ctx context.Context, id int64) (*metadata.DescriptionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+descriptionColumns+` FROM series_descriptions WHERE index_id = ?`, id)

	rec, err := scanDescription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.ErrNotFound{Key: fmt.Sprintf("index_id %d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("querying description by index id %d: %w", id, err)
	}
	return rec, nil
}

// DescriptionBySeriesUID returns the record with the given SeriesUID.
func (s *Store) DescriptionBySeriesUID(ctx context.Context, uid string) (*metadata.DescriptionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+descriptionColumns+` FROM series_descriptions WHERE series_uid = ?`, uid)

	rec, err := scanDescription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metadata.ErrNotFound{Key: uid}
	}
	if err != nil {
		return nil, fmt.Errorf("querying description by series uid %s: %w", uid, err)
	}
	return rec, nil
}

// ListDescriptions returns every DescriptionRecord of the given tomography
// type, ordered by IndexID.
func (s *Store) ListDescriptions(ctx context.Context, tomographyType string) ([]metadata.DescriptionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+descriptionColumns+` FROM series_descriptions WHERE tomography_type = ? ORDER BY index_id`,
		tomographyType,
	)
	if err != nil {
		return nil, fmt.Errorf("listing descriptions for type %s: %w", tomographyType, err)
	}
	defer rows.Close()

	var records []metadata.DescriptionRecord
	for rows.Next() {
		rec, err := scanDescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning description record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating description records: %w", err)
	}

	return records, nil
}

// DeleteSeries removes the series' paths and description atomically. The
// whole transaction is rolled back if any statement fails, so the store never
// holds paths without a description or vice versa.
func (s *Store) DeleteSeries(ctx context.Context, seriesUID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series_descriptions WHERE series_uid = ?`, seriesUID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking series %s: %w", seriesUID, err)
	}
	if exists == 0 {
		return metadata.ErrNotFound{Key: seriesUID}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_paths WHERE series_uid = ?`, seriesUID,
	); err != nil {
		return fmt.Errorf("deleting paths for %s: %w", seriesUID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM series_descriptions WHERE series_uid = ?`, seriesUID,
	); err != nil {
		return fmt.Errorf("deleting description for %s: %w", seriesUID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing series deletion: %w", err)
	}

	s.logger.Debug("deleted series", "series_uid", seriesUID)
	return nil
}

// Close closes the store and releases any resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// isConstraintErr reports whether err is a SQLite uniqueness or constraint
// violation.
func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Ensure Store implements metadata.Store.
var _ metadata.Store = (*Store)(nil)
