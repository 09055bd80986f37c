package testutils

import (
	"fmt"
	"path/filepath"

	"github.com/dicomdex/dicomdex/pkg/dicom"
)

// StubTagReader is a test tag reader keyed by file base name.
type StubTagReader struct {
	Tags map[string]dicom.Tags

	// FailOn causes ReadTags to return an error for the matching base name.
	FailOn string
}

func NewStubTagReader() *StubTagReader {
	return &StubTagReader{
		Tags: make(map[string]dicom.Tags),
	}
}

func (s *StubTagReader) ReadTags(path string) (dicom.Tags, error) {
	base := filepath.Base(path)
	if s.FailOn != "" && base == s.FailOn {
		return dicom.Tags{}, fmt.Errorf("mock tag read failure for: %s", base)
	}

	tags, ok := s.Tags[base]
	if !ok {
		return dicom.Tags{}, fmt.Errorf("no stub tags for: %s", base)
	}

	return tags, nil
}
