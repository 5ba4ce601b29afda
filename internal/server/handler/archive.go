package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/service"
)

// ArchiveService defines what the archive handler needs from the service
// layer.
type ArchiveService interface {
	ListArchived(ctx context.Context, month string) ([]service.ArchivedQuestionRef, error)
	GetArchived(ctx context.Context, questionID, month string) (domain.ArchivedQuestion, error)
}

// ArchiveHandler serves read access to question bundles in cold storage.
type ArchiveHandler struct {
	archive ArchiveService
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler with the given service.
func NewArchiveHandler(archive ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archive: archive,
		logger:  logger,
	}
}

// listArchivedResponse wraps the archive listing.
type listArchivedResponse struct {
	Archives []service.ArchivedQuestionRef `json:"archives"`
}

// ListArchivedQuestions returns the archived question bundles, optionally
// narrowed to one resolution month.
// GET /api/archive/questions?month=2026-03
func (h *ArchiveHandler) ListArchivedQuestions(w http.ResponseWriter, r *http.Request) {
	refs, err := h.archive.ListArchived(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list archived questions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archived questions")
		return
	}
	if refs == nil {
		refs = []service.ArchivedQuestionRef{}
	}

	writeJSON(w, http.StatusOK, listArchivedResponse{Archives: refs})
}

// GetArchivedQuestion returns one question's archived bundle: the question
// record plus its full forecast revision history.
// GET /api/archive/questions/{id}?month=2026-03
func (h *ArchiveHandler) GetArchivedQuestion(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	bundle, err := h.archive.GetArchived(r.Context(), id, r.URL.Query().Get("month"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "archived question not found")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: get archived question failed",
				slog.String("question_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get archived question")
		}
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}
