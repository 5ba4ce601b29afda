package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/service"
)

// IntakeService defines the methods that the forecast handler requires from
// the service layer.
type IntakeService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
	GetLatest(ctx context.Context, questionID, userID string) (domain.Forecast, error)
	ListByQuestion(ctx context.Context, questionID string) ([]domain.ForecastWithUser, error)
}

// ForecastHandler serves forecast intake and history endpoints.
type ForecastHandler struct {
	intake IntakeService
	logger *slog.Logger
}

// NewForecastHandler creates a ForecastHandler with the given service.
func NewForecastHandler(intake IntakeService, logger *slog.Logger) *ForecastHandler {
	return &ForecastHandler{
		intake: intake,
		logger: logger,
	}
}

// submitForecastRequest is the JSON body for a forecast submission. Binary
// questions take probability, numeric questions take prediction.
type submitForecastRequest struct {
	UserID      string   `json:"user_id"`
	Probability *int     `json:"probability"`
	Prediction  *float64 `json:"prediction"`
	Confidence  *int     `json:"confidence"`
}

// SubmitForecast records a new forecast revision for a question.
// POST /api/questions/{id}/forecasts
func (h *ForecastHandler) SubmitForecast(w http.ResponseWriter, r *http.Request) {
	questionID := pathParam(r, "id")
	if questionID == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	var req submitForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	forecastID, err := h.intake.Submit(r.Context(), service.SubmitRequest{
		QuestionID:  questionID,
		UserID:      req.UserID,
		Probability: req.Probability,
		Prediction:  req.Prediction,
		Confidence:  req.Confidence,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "question or user not found")
		case errors.Is(err, domain.ErrQuestionNotOpen):
			writeError(w, http.StatusConflict, "question is not open")
		case errors.Is(err, domain.ErrDeadlinePassed):
			writeError(w, http.StatusConflict, "question close time has passed")
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "handler: submit forecast failed",
				slog.String("question_id", questionID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit forecast")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"forecast_id": forecastID})
}

// listForecastsResponse wraps the forecast history response.
type listForecastsResponse struct {
	Forecasts []domain.ForecastWithUser `json:"forecasts"`
}

// ListForecasts returns every forecast revision for a question with user
// names, most recent first.
// GET /api/questions/{id}/forecasts
func (h *ForecastHandler) ListForecasts(w http.ResponseWriter, r *http.Request) {
	questionID := pathParam(r, "id")
	if questionID == "" {
		writeError(w, http.StatusBadRequest, "missing question id")
		return
	}

	forecasts, err := h.intake.ListByQuestion(r.Context(), questionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list forecasts failed",
			slog.String("question_id", questionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list forecasts")
		return
	}
	if forecasts == nil {
		forecasts = []domain.ForecastWithUser{}
	}

	writeJSON(w, http.StatusOK, listForecastsResponse{Forecasts: forecasts})
}

// GetLatestForecast returns a user's current standing forecast for a question.
// GET /api/questions/{id}/forecasts/latest?user_id=...
func (h *ForecastHandler) GetLatestForecast(w http.ResponseWriter, r *http.Request) {
	questionID := pathParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if questionID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "question id and user_id are required")
		return
	}

	forecast, err := h.intake.GetLatest(r.Context(), questionID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no forecast found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get latest forecast failed",
			slog.String("question_id", questionID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get forecast")
		return
	}

	writeJSON(w, http.StatusOK, forecast)
}
