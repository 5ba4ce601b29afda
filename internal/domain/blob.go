package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	// Get returns the object's body. Fails with ErrNotFound when the path
	// does not exist; the caller closes the returned reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver moves the forecast history of long-resolved, scored questions
// from the database to cold storage.
type Archiver interface {
	ArchiveQuestions(ctx context.Context, before time.Time) (int64, error)
}

// ArchivedQuestion is the bundle written to cold storage for one question:
// the question record plus its full forecast revision history.
type ArchivedQuestion struct {
	Question   Question   `json:"question"`
	Forecasts  []Forecast `json:"forecasts"`
	ArchivedAt time.Time  `json:"archived_at"`
}

// ArchiveMonthLayout is the time layout of the month segment in archive keys.
const ArchiveMonthLayout = "2006-01"

const archiveQuestionPrefix = "archive/questions/"

// ArchivePath returns the storage key for a question's archive bundle,
// partitioned by the year-month of resolution:
//
//	archive/questions/2026-03/<question-id>.json
func ArchivePath(q Question) string {
	month := q.CreatedAt.Format(ArchiveMonthLayout)
	if q.ResolutionTime != nil {
		month = q.ResolutionTime.Format(ArchiveMonthLayout)
	}
	return archiveQuestionPrefix + month + "/" + q.ID + ".json"
}

// ArchiveMonthPrefix returns the listing prefix for one resolution month, or
// for the whole archive when month is empty.
func ArchiveMonthPrefix(month string) string {
	if month == "" {
		return archiveQuestionPrefix
	}
	return archiveQuestionPrefix + month + "/"
}

// ParseArchivePath splits an archive key into its month and question id.
// Keys outside the archive layout report ok as false.
func ParseArchivePath(path string) (month, questionID string, ok bool) {
	rest, found := strings.CutPrefix(path, archiveQuestionPrefix)
	if !found {
		return "", "", false
	}
	month, file, found := strings.Cut(rest, "/")
	if !found || month == "" || strings.Contains(file, "/") {
		return "", "", false
	}
	questionID = strings.TrimSuffix(file, ".json")
	if questionID == "" || questionID == file {
		return "", "", false
	}
	return month, questionID, true
}
