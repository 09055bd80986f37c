// Package dicom provides the tag-reading contract the pipelines depend on,
// plus the mapping from a loosely-typed tag set into a typed description
// record. Pixel data is never decoded here; image handling belongs to the
// external feature extraction service.
package dicom

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dicomdex/dicomdex/pkg/metadata"
)

// Tags is the fixed set of attributes dicomdex reads from a DICOM file.
// Absent or malformed string attributes default to "" rather than failing;
// required-field enforcement happens at record validation, not here.
type Tags struct {
	SeriesUID         string
	PatientName       string
	PatientSex        string
	PatientBirthDate  string
	PatientAge        string
	AcquisitionNumber int
	ProtocolName      string
	StudyDate         string
	StudyTime         string
	InstitutionName   string
	InstanceNumber    int
}

// TagReader extracts Tags from a single DICOM file.
type TagReader interface {
	ReadTags(path string) (Tags, error)
}

// Description maps the tag set into a DescriptionRecord for the given
// tomography type. The mapping is total: absent attributes stay "", and an
// absent ProtocolName falls back to the type's configured default.
func (t Tags) Description(tomographyType, defaultProtocol string) *metadata.DescriptionRecord {
	protocol := t.ProtocolName
	if protocol == "" {
		protocol = defaultProtocol
	}

	return &metadata.DescriptionRecord{
		SeriesUID:        t.SeriesUID,
		TomographyType:   tomographyType,
		PatientName:      t.PatientName,
		PatientSex:       t.PatientSex,
		PatientBirth:     t.PatientBirthDate,
		PatientAge:       t.PatientAge,
		AcquisitionCount: t.AcquisitionNumber,
		ProtocolName:     protocol,
		StudyDate:        t.StudyDate,
		StudyTime:        t.StudyTime,
		InstitutionName:  t.InstitutionName,
	}
}

// DescriptionEquals reports whether two tag sets agree on every
// description-relevant attribute. Path-level attributes (InstanceNumber) are
// ignored. Used to warn when files of one series carry conflicting tags.
func (t Tags) DescriptionEquals(other Tags) bool {
	t.InstanceNumber = 0
	other.InstanceNumber = 0
	return t == other
}

// ListFiles returns the .dcm files directly inside dir, sorted by name.
// Subdirectories are not descended into.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".dcm") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

// SeriesInDir returns the distinct series UIDs among the .dcm files directly
// inside dir. Files whose tags cannot be read are skipped.
func SeriesInDir(reader TagReader, dir string) ([]string, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var uids []string
	for _, file := range files {
		tags, err := reader.ReadTags(file)
		if err != nil {
			continue
		}
		if tags.SeriesUID == "" || seen[tags.SeriesUID] {
			continue
		}
		seen[tags.SeriesUID] = true
		uids = append(uids, tags.SeriesUID)
	}

	return uids, nil
}
