package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MockExtractor is a test feature extractor that returns predictable vectors.
// It keys off the contents of the first frame file in the series directory,
// so tests control which vector a series maps to by controlling file
// contents.
type MockExtractor struct {
	Vectors map[string][]float32

	// Default is returned for keys with no configured vector.
	Default []float32

	// FailOn causes Extract to return an error when the key matches.
	FailOn string

	// Calls accumulates the keys Extract was invoked with.
	Calls []string
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		Vectors: make(map[string][]float32),
		Default: []float32{0.1, 0.2, 0.3},
	}
}

func (m *MockExtractor) Extract(_ context.Context, seriesDir string) ([]float32, error) {
	key, err := m.seriesKey(seriesDir)
	if err != nil {
		return nil, err
	}
	m.Calls = append(m.Calls, key)

	if m.FailOn != "" && key == m.FailOn {
		return nil, fmt.Errorf("mock extraction failure for: %s", key)
	}

	if vec, ok := m.Vectors[key]; ok {
		return vec, nil
	}

	return m.Default, nil
}

func (m *MockExtractor) Close() error {
	return nil
}

func (m *MockExtractor) seriesKey(seriesDir string) (string, error) {
	entries, err := os.ReadDir(seriesDir)
	if err != nil {
		return "", err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no frames in %s", seriesDir)
	}
	sort.Strings(names)

	body, err := os.ReadFile(filepath.Join(seriesDir, names[0]))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}
