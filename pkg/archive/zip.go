// Package archive packs and unpacks the zip files the HTTP endpoints
// exchange. Only .dcm entries are extracted; everything else in an uploaded
// archive is ignored.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractDicomFiles extracts every .dcm entry of the zip at zipPath into
// outputDir (flattened, directory structure inside the archive is dropped).
// Returns the number of files extracted.
func ExtractDicomFiles(zipPath, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer reader.Close()

	count := 0
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name), ".dcm") {
			continue
		}

		if err := extractEntry(entry, outputDir); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func extractEntry(entry *zip.File, outputDir string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	// Flatten: the base name guards against zip-slip paths as a side effect.
	target := filepath.Join(outputDir, filepath.Base(entry.Name))
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}

	return nil
}

// PackFiles writes the given files into a new zip at zipPath, each stored
// under its base name.
func PackFiles(paths []string, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", zipPath, err)
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	for _, path := range paths {
		if err := packEntry(writer, path); err != nil {
			writer.Close()
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}

	return nil
}

func packEntry(writer *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	dst, err := writer.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating archive entry for %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("packing %s: %w", path, err)
	}

	return nil
}
