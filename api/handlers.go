package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dicomdex/dicomdex/pkg/archive"
	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/query"
)

// Response is the envelope every JSON endpoint answers with. StatusCode is 0
// for success (HTTP 200) and 1 for failure (HTTP 400).
type Response struct {
	StatusCode  int    `json:"status_code"`
	Description string `json:"description"`
	Message     any    `json:"message"`
}

// UploadInfo echoes the tag values read from the uploaded series.
type UploadInfo struct {
	SeriesInstanceUID string `json:"SeriesInstanceUID"`
	PatientName       string `json:"PatientName"`
	PatientSex        string `json:"PatientSex"`
	PatientBirthDate  string `json:"PatientBirthDate"`
	PatientAge        string `json:"PatientAge"`
	AcquisitionNumber int    `json:"AcquisitionNumber"`
	ProtocolName      string `json:"ProtocolName"`
	StudyDate         string `json:"StudyDate"`
	StudyTime         string `json:"StudyTime"`
	InstitutionName   string `json:"InstitutionName"`
}

// UploadMessage is the success payload of the upload endpoint.
type UploadMessage struct {
	UploadDicomInfo UploadInfo           `json:"upload_dicom_info"`
	SearchResults   []query.SearchResult `json:"search_similarity_results"`
}

func success(c *fiber.Ctx, message any) error {
	if message == nil {
		message = map[string]any{}
	}
	return c.JSON(Response{StatusCode: 0, Description: "success", Message: message})
}

func failure(c *fiber.Ctx, description string) error {
	return c.Status(fiber.StatusBadRequest).JSON(Response{
		StatusCode:  1,
		Description: description,
		Message:     map[string]any{},
	})
}

func internalError(c *fiber.Ctx, description string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(Response{
		StatusCode:  1,
		Description: description,
		Message:     map[string]any{},
	})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleUploadZip accepts a zip of one series, extracts its embedding, and
// answers with the uploaded series' tags plus its nearest stored neighbors.
// Nothing is persisted.
func (s *Server) handleUploadZip(c *fiber.Ctx) error {
	tomography := c.Query("tomography")
	topN := c.QueryInt("topn")

	file, err := c.FormFile("file")
	if err != nil {
		return failure(c, "a zip file upload is required")
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".zip") {
		return failure(c, "the uploaded file must be in zip format")
	}

	tomo, err := s.types.TomographyType(tomography)
	if err != nil {
		return failure(c, fmt.Sprintf(
			"tomography must be one of: %s", strings.Join(s.types.TomographyNames(), ","),
		))
	}
	if topN < query.TopKMin || topN > query.TopKMax {
		return failure(c, fmt.Sprintf(
			"topn must be between %d and %d", query.TopKMin, query.TopKMax,
		))
	}

	tmpDir, err := os.MkdirTemp("", "dicomdex-upload-*")
	if err != nil {
		return internalError(c, "failed to allocate scratch space")
	}
	defer os.RemoveAll(tmpDir)

	zipPath := filepath.Join(tmpDir, "upload.zip")
	if err := c.SaveFile(file, zipPath); err != nil {
		return internalError(c, "failed to store the uploaded file")
	}

	dicomDir := filepath.Join(tmpDir, "dicomfiles")
	if _, err := archive.ExtractDicomFiles(zipPath, dicomDir); err != nil {
		return failure(c, "the uploaded file could not be read as a zip archive")
	}

	uids, err := dicom.SeriesInDir(s.reader, dicomDir)
	if err != nil || len(uids) != 1 {
		return failure(c, "the zip file must contain exactly one DICOM series")
	}

	files, err := dicom.ListFiles(dicomDir)
	if err != nil {
		return internalError(c, "failed to read the extracted series")
	}
	if len(files) != tomo.FrameCount {
		return failure(c, fmt.Sprintf(
			"a %s series must contain %d frames", tomography, tomo.FrameCount,
		))
	}

	tags, err := s.reader.ReadTags(files[0])
	if err != nil {
		return failure(c, "the series tags could not be read")
	}

	extractor, ok := s.extractors[tomography]
	if !ok {
		return internalError(c, fmt.Sprintf("no feature extractor configured for %s", tomography))
	}

	vec, err := extractor.Extract(c.Context(), dicomDir)
	if err != nil {
		s.logger.Error("feature extraction failed", "tomography_type", tomography, "error", err)
		return internalError(c, "feature extraction failed")
	}

	results, err := s.queries.SearchSimilar(c.Context(), tomography, vec, topN)
	if err != nil {
		if query.IsValidation(err) {
			return failure(c, err.Error())
		}
		s.logger.Error("similarity search failed", "tomography_type", tomography, "error", err)
		return internalError(c, "similarity search failed")
	}

	return success(c, UploadMessage{
		UploadDicomInfo: UploadInfo{
			SeriesInstanceUID: tags.SeriesUID,
			PatientName:       tags.PatientName,
			PatientSex:        tags.PatientSex,
			PatientBirthDate:  tags.PatientBirthDate,
			PatientAge:        tags.PatientAge,
			AcquisitionNumber: tags.AcquisitionNumber,
			ProtocolName:      tags.ProtocolName,
			StudyDate:         tags.StudyDate,
			StudyTime:         tags.StudyTime,
			InstitutionName:   tags.InstitutionName,
		},
		SearchResults: results,
	})
}

// handleDownloadZip packages all stored files of a series into a zip and
// streams it; the temporary archive is removed once the response completes.
func (s *Server) handleDownloadZip(c *fiber.Ctx) error {
	seriesID := c.Query("series_id")
	if seriesID == "" {
		return failure(c, "series_id parameter required")
	}

	paths, err := s.queries.LookupPathsBySeriesPrefix(c.Context(), seriesID)
	if err != nil {
		s.logger.Error("path lookup failed", "series_id", seriesID, "error", err)
		return internalError(c, "path lookup failed")
	}
	if len(paths) == 0 {
		return failure(c, fmt.Sprintf("no records exist for series id %s", seriesID))
	}

	files := make([]string, 0, len(paths))
	for _, rec := range paths {
		files = append(files, filepath.Join(s.config.DataDir, rec.RelativePath))
	}

	zipFile, err := os.CreateTemp("", "dicomdex-download-*.zip")
	if err != nil {
		return internalError(c, "failed to allocate scratch space")
	}
	zipPath := zipFile.Name()
	zipFile.Close()

	if err := archive.PackFiles(files, zipPath); err != nil {
		os.Remove(zipPath)
		s.logger.Error("failed to package series", "series_id", seriesID, "error", err)
		return internalError(c, "failed to package the series")
	}

	stream, err := newDeletingReader(zipPath)
	if err != nil {
		os.Remove(zipPath)
		return internalError(c, "failed to read the packaged series")
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.zip"`, seriesID))

	return c.SendStream(stream, stream.size)
}

// deletingReader streams a file and removes it from disk on Close; fasthttp
// closes response body streams after the response is written.
type deletingReader struct {
	file *os.File
	path string
	size int
}

func newDeletingReader(path string) (*deletingReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &deletingReader{file: f, path: path, size: int(info.Size())}, nil
}

func (r *deletingReader) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

func (r *deletingReader) Close() error {
	err := r.file.Close()
	if removeErr := os.Remove(r.path); err == nil {
		err = removeErr
	}
	return err
}
