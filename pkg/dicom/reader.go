package dicom

import (
	"fmt"
	"strconv"
	"strings"

	suyash "github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Reader implements TagReader on real DICOM files.
type Reader struct{}

// NewReader creates a file-backed tag reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadTags parses the file's data set and extracts the attributes dicomdex
// needs. Individual absent or malformed attributes default to their zero
// value; only an unparseable file is an error.
func (r *Reader) ReadTags(path string) (Tags, error) {
	ds, err := suyash.ParseFile(path, nil)
	if err != nil {
		return Tags{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return Tags{
		SeriesUID:         stringTag(&ds, tag.SeriesInstanceUID),
		PatientName:       stringTag(&ds, tag.PatientName),
		PatientSex:        stringTag(&ds, tag.PatientSex),
		PatientBirthDate:  stringTag(&ds, tag.PatientBirthDate),
		PatientAge:        stringTag(&ds, tag.PatientAge),
		AcquisitionNumber: intTag(&ds, tag.AcquisitionNumber),
		ProtocolName:      stringTag(&ds, tag.ProtocolName),
		StudyDate:         stringTag(&ds, tag.StudyDate),
		StudyTime:         stringTag(&ds, tag.StudyTime),
		InstitutionName:   stringTag(&ds, tag.InstitutionName),
		InstanceNumber:    intTag(&ds, tag.InstanceNumber),
	}, nil
}

// stringTag returns the first string value of the element, or "".
func stringTag(ds *suyash.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}

	switch v := el.Value.GetValue().(type) {
	case []string:
		if len(v) == 0 {
			return ""
		}
		return strings.TrimSpace(v[0])
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

// intTag returns the first integer value of the element, or 0. DICOM integer
// strings (VR IS) arrive as strings and are parsed.
func intTag(ds *suyash.Dataset, t tag.Tag) int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return 0
	}

	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) == 0 {
			return 0
		}
		return v[0]
	case []string:
		if len(v) == 0 {
			return 0
		}
		n, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Ensure Reader implements TagReader.
var _ TagReader = (*Reader)(nil)
