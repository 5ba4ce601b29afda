package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/service"
)

// QuestionService defines the methods that the question handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type QuestionService interface {
	Create(ctx context.Context, req service.CreateQuestionRequest) (string, error)
	Get(ctx context.Context, id string) (domain.QuestionWithCreator, error)
	List(ctx context.Context, status domain.QuestionStatus, opts domain.ListOpts) ([]domain.QuestionWithCreator, error)
	Close(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string, req service.ResolveRequest) error
}

// ScoringService triggers the scoring pass for a resolved question.
type ScoringService interface {
	ScoreQuestion(ctx context.Context, questionID string) (service.ScoreSummary, error)
}

// QuestionHandler serves the question lifecycle endpoints.
type QuestionHandler struct {
	questions QuestionService
	scoring   ScoringService
	logger    *slog.Logger
}

// NewQuestionHandler creates a QuestionHandler with the given services.
func NewQuestionHandler(questions QuestionService, scoring ScoringService, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		scoring:   scoring,
		logger:    logger,
	}
}

// createQuestionRequest is the JSON body for question creation.
type createQuestionRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Kind        string     `json:"kind"`
	Mode        string     `json:"mode"`
	CloseTime   time.Time  `json:"close_time"`
	MinValue    *float64   `json:"min_value"`
	MaxValue    *float64   `json:"max_value"`
	CreatedBy   string     `json:"created_by"`
}

// CreateQuestion opens a new question for forecasting.
// POST /api/questions
func (h *QuestionHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.questions.Create(r.Context(), service.CreateQuestionRequest{
		Title:       req.Title,
		Description: req.Description,
		Kind:        domain.QuestionKind(req.Kind),
		Mode:        domain.ScoringMode(req.Mode),
		CloseTime:   req.CloseTime,
		MinValue:    req.MinValue,
		MaxValue:    req.MaxValue,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create question failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create question")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"question_id": id})
}

// listQuestionsResponse wraps the list endpoint output with metadata.
type listQuestionsResponse struct {
	Questions []domain.QuestionWithCreator `json:"questions"`
	Limit     int                          `json:"limit"`
	Offset    int                          `json:"offset"`
}

// ListQuestions returns questions, optionally filtered by status.
// GET /api/questions?status=open&limit=50&offset=0
func (h *QuestionHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.QuestionStatus(r.URL.Query().Get("status"))

	switch status {
	case "", domain.QuestionStatusOpen, domain.QuestionStatusClosed, domain.QuestionStatusResolved:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	questions, err := h.questions.List(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list questions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}
	if questions == nil {
		questions = []domain.QuestionWithCreator{}
	}

	writeJSON(w, http.StatusOK, listQuestionsResponse{
		Questions: questions,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetQuestion returns a single question by its ID.
// GET /api/questions/{id}
func (h *QuestionHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	question, err := h.questions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "question not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get question failed",
			slog.String("question_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get question")
		return
	}

	writeJSON(w, http.StatusOK, question)
}

// CloseQuestion stops intake on an open question before its close time.
// POST /api/questions/{id}/close
func (h *QuestionHandler) CloseQuestion(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	if err := h.questions.Close(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "question already resolved")
		default:
			h.logger.ErrorContext(r.Context(), "handler: close question failed",
				slog.String("question_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to close question")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "closed",
		"question_id": id,
	})
}

// resolveQuestionRequest is the JSON body for resolution. Exactly one of the
// outcome fields must be set, matching the question's kind.
type resolveQuestionRequest struct {
	OutcomeBool  *bool    `json:"outcome_bool"`
	OutcomeValue *float64 `json:"outcome_value"`
}

// ResolveQuestion records the ground-truth outcome for a question.
// POST /api/questions/{id}/resolve
func (h *QuestionHandler) ResolveQuestion(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	var req resolveQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.questions.Resolve(r.Context(), id, service.ResolveRequest{
		OutcomeBool:  req.OutcomeBool,
		OutcomeValue: req.OutcomeValue,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "question already resolved")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve question failed",
				slog.String("question_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve question")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "resolved",
		"question_id": id,
	})
}

// ScoreQuestion runs the scoring pass for a resolved question and returns the
// per-user results. Re-running it on an already scored question is a no-op.
// POST /api/questions/{id}/score
func (h *QuestionHandler) ScoreQuestion(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	summary, err := h.scoring.ScoreQuestion(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, domain.ErrNotResolved):
			writeError(w, http.StatusConflict, "question not resolved yet")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "scoring already in progress")
		default:
			h.logger.ErrorContext(r.Context(), "handler: score question failed",
				slog.String("question_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to score question")
		}
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
