package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
)

// archiveBatchSize caps how many questions one archive pass touches.
const archiveBatchSize = 100

// ArchiveImpl implements domain.Archiver. For each scored question resolved
// before the cutoff it uploads the question and its forecast history as one
// JSON object, then deletes the forecast rows from the primary store. The
// question row itself (with its outcome) stays in Postgres; only the bulky
// revision history moves to cold storage. A question's forecasts are deleted
// only after its upload succeeded, so a failed pass never loses history.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	questions domain.QuestionStore
	forecasts domain.ForecastStore
	clock     domain.Clock
	logger    *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	questions domain.QuestionStore,
	forecasts domain.ForecastStore,
	clock domain.Clock,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		questions: questions,
		forecasts: forecasts,
		clock:     clock,
		logger:    logger,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveQuestions archives all scored questions resolved before the cutoff
// and returns the number of questions archived.
func (a *ArchiveImpl) ArchiveQuestions(ctx context.Context, before time.Time) (int64, error) {
	questions, err := a.questions.ListScoredBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	var archived int64
	for _, q := range questions {
		if err := a.archiveOne(ctx, q); err != nil {
			// Stop at the first failure; the remaining questions are picked
			// up by the next pass.
			return archived, err
		}
		archived++
	}

	if archived > 0 {
		a.logger.InfoContext(ctx, "s3blob: archive pass complete",
			slog.Int64("questions", archived),
			slog.Time("before", before),
		)
	}
	return archived, nil
}

func (a *ArchiveImpl) archiveOne(ctx context.Context, q domain.Question) error {
	forecasts, err := a.forecasts.ListByQuestion(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: list forecasts: %w", q.ID, err)
	}

	bundle := domain.ArchivedQuestion{
		Question:   q,
		Forecasts:  forecasts,
		ArchivedAt: a.clock.Now(),
	}
	buf, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: marshal: %w", q.ID, err)
	}

	path := domain.ArchivePath(q)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive %s: upload: %w", q.ID, err)
	}

	deleted, err := a.forecasts.DeleteByQuestion(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: delete forecasts: %w", q.ID, err)
	}

	a.logger.InfoContext(ctx, "s3blob: question archived",
		slog.String("question_id", q.ID),
		slog.String("path", path),
		slog.Int64("forecasts", deleted),
	)
	return nil
}
