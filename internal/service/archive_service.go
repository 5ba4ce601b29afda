package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
)

// ArchivedQuestionRef identifies one question bundle in cold storage.
type ArchivedQuestionRef struct {
	QuestionID string    `json:"question_id"`
	Month      string    `json:"month"`
	Size       int64     `json:"size"`
	StoredAt   time.Time `json:"stored_at"`
}

// ArchiveService reads question bundles back out of cold storage. It is the
// retrieval counterpart of the archiver: a resolved question whose forecast
// history has been moved out of the database stays inspectable here.
type ArchiveService struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveService creates an ArchiveService over the given blob backend.
func NewArchiveService(blobs domain.BlobReader, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		blobs:  blobs,
		logger: logger,
	}
}

// ListArchived returns the archived bundles for one resolution month, or for
// the whole archive when month is empty.
func (s *ArchiveService) ListArchived(ctx context.Context, month string) ([]ArchivedQuestionRef, error) {
	if err := validateMonth(month); err != nil {
		return nil, err
	}

	infos, err := s.blobs.List(ctx, domain.ArchiveMonthPrefix(month))
	if err != nil {
		return nil, fmt.Errorf("archive: list month %q: %w", month, err)
	}

	refs := make([]ArchivedQuestionRef, 0, len(infos))
	for _, info := range infos {
		m, id, ok := domain.ParseArchivePath(info.Path)
		if !ok {
			// Foreign objects under the prefix are not bundles; skip them.
			continue
		}
		refs = append(refs, ArchivedQuestionRef{
			QuestionID: id,
			Month:      m,
			Size:       info.Size,
			StoredAt:   info.LastModified,
		})
	}
	return refs, nil
}

// GetArchived fetches and decodes one question's archive bundle. The month
// narrows the lookup to a direct key; when empty the archive listing is
// scanned for the question id.
func (s *ArchiveService) GetArchived(ctx context.Context, questionID, month string) (domain.ArchivedQuestion, error) {
	if questionID == "" {
		return domain.ArchivedQuestion{}, fmt.Errorf("%w: question id is required", domain.ErrValidation)
	}
	if err := validateMonth(month); err != nil {
		return domain.ArchivedQuestion{}, err
	}

	var path string
	if month != "" {
		path = domain.ArchiveMonthPrefix(month) + questionID + ".json"
	} else {
		found, err := s.findBundle(ctx, questionID)
		if err != nil {
			return domain.ArchivedQuestion{}, err
		}
		path = found
	}

	body, err := s.blobs.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ArchivedQuestion{}, fmt.Errorf("archive: question %q: %w", questionID, domain.ErrNotFound)
		}
		return domain.ArchivedQuestion{}, fmt.Errorf("archive: get %s: %w", path, err)
	}
	defer body.Close()

	var bundle domain.ArchivedQuestion
	if err := json.NewDecoder(body).Decode(&bundle); err != nil {
		return domain.ArchivedQuestion{}, fmt.Errorf("archive: decode %s: %w", path, err)
	}
	return bundle, nil
}

// findBundle scans the archive listing for the question's bundle key.
func (s *ArchiveService) findBundle(ctx context.Context, questionID string) (string, error) {
	infos, err := s.blobs.List(ctx, domain.ArchiveMonthPrefix(""))
	if err != nil {
		return "", fmt.Errorf("archive: scan for %q: %w", questionID, err)
	}
	for _, info := range infos {
		if _, id, ok := domain.ParseArchivePath(info.Path); ok && id == questionID {
			return info.Path, nil
		}
	}
	return "", fmt.Errorf("archive: question %q: %w", questionID, domain.ErrNotFound)
}

func validateMonth(month string) error {
	if month == "" {
		return nil
	}
	if _, err := time.Parse(domain.ArchiveMonthLayout, month); err != nil {
		return fmt.Errorf("%w: month must look like 2026-03", domain.ErrValidation)
	}
	return nil
}
