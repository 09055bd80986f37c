package pipeline

import "fmt"

// IngestResult contains statistics from an ingestion run.
type IngestResult struct {
	ScannedFiles    int
	UnreadableFiles int
	SeriesFound     int
	Ingested        int
	Duplicates      int
	Skipped         int
	IndexTotal      int64
}

// Summary returns a human-readable summary of the ingestion result.
func (r *IngestResult) Summary() string {
	return fmt.Sprintf(
		"Ingestion complete: %d series indexed, %d duplicates, %d skipped\n"+
			"Scanned %d files (%d unreadable), %d series found\n"+
			"Index now holds %d vectors",
		r.Ingested, r.Duplicates, r.Skipped,
		r.ScannedFiles, r.UnreadableFiles, r.SeriesFound,
		r.IndexTotal,
	)
}

// RebuildResult contains statistics from a rebuild run.
type RebuildResult struct {
	Total      int
	Indexed    int
	Skipped    int
	IndexTotal int64
}

// Summary returns a human-readable summary of the rebuild result.
func (r *RebuildResult) Summary() string {
	return fmt.Sprintf(
		"Rebuild complete: %d of %d series indexed, %d skipped\n"+
			"Index now holds %d vectors",
		r.Indexed, r.Total, r.Skipped, r.IndexTotal,
	)
}

// DeleteResult contains statistics from a deletion run.
type DeleteResult struct {
	Requested int
	Deleted   int
	Missing   int
	Failed    int
}

// Summary returns a human-readable summary of the deletion result.
func (r *DeleteResult) Summary() string {
	return fmt.Sprintf(
		"Deletion complete: %d of %d series deleted, %d missing, %d failed",
		r.Deleted, r.Requested, r.Missing, r.Failed,
	)
}
