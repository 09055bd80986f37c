package metadata

import (
	"errors"
	"fmt"
)

// Validate checks the presence of required description fields before insert.
// Attribute values are opaque strings; only presence is enforced, never
// semantics. PatientAge, ProtocolName and InstitutionName may be empty.
func (r *DescriptionRecord) Validate() error {
	if r == nil {
		return errors.New("nil description record")
	}

	required := []struct {
		name  string
		value string
	}{
		{"series_uid", r.SeriesUID},
		{"tomography_type", r.TomographyType},
		{"patient_name", r.PatientName},
		{"patient_sex", r.PatientSex},
		{"patient_birth_date", r.PatientBirth},
		{"study_date", r.StudyDate},
		{"study_time", r.StudyTime},
	}

	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("description field %s is required", f.name)
		}
	}

	if r.AcquisitionCount < 1 {
		return fmt.Errorf("acquisition_count must be at least 1, got %d", r.AcquisitionCount)
	}

	return nil
}
