package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/notify"
	"github.com/clipfolio/forecastd/internal/scoring"
	"github.com/clipfolio/forecastd/internal/server"
	"github.com/clipfolio/forecastd/internal/server/handler"
	"github.com/clipfolio/forecastd/internal/server/ws"
	"github.com/clipfolio/forecastd/internal/service"
)

// services bundles the domain services shared by the HTTP API and the worker.
type services struct {
	users       *service.UserService
	questions   *service.QuestionService
	intake      *service.IntakeService
	scoring     *service.ScoringService
	leaderboard *service.LeaderboardService

	// archive is nil unless cold storage is configured.
	archive *service.ArchiveService
}

// buildServices constructs the full service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	clock := domain.SystemClock{}

	intake := service.NewIntakeService(
		deps.QuestionStore, deps.ForecastStore, deps.UserStore,
		deps.RateLimiter, deps.SignalBus, clock, a.logger,
	)
	if a.cfg.Scoring.SubmitRateLimit > 0 {
		intake.SetRateLimit(a.cfg.Scoring.SubmitRateLimit, time.Minute)
	}

	svcs := &services{
		users:     service.NewUserService(deps.UserStore, clock, a.logger),
		questions: service.NewQuestionService(deps.QuestionStore, deps.SignalBus, clock, a.logger),
		intake:    intake,
		scoring: service.NewScoringService(
			deps.QuestionStore, deps.ForecastStore, deps.ScoreStore,
			scoring.NewEngine(clock),
			deps.LockManager, deps.LeaderboardCache, deps.SignalBus, a.logger,
		),
		leaderboard: service.NewLeaderboardService(deps.UserStore, deps.LeaderboardCache, a.logger),
	}
	if deps.BlobReader != nil {
		svcs.archive = service.NewArchiveService(deps.BlobReader, a.logger)
	}
	return svcs
}

// ServeMode runs the HTTP API and WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPIServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// WorkerMode runs the scoring worker and, when S3 is enabled, the archive loop.
// No HTTP server is started.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	g.Go(func() error {
		return a.runScoringWorker(ctx, deps, svcs.scoring)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}
	return g.Wait()
}

// FullMode runs the HTTP API, WebSocket hub, scoring worker, and archive loop
// in a single process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startAPIServer(ctx, g, deps, svcs)
	g.Go(func() error {
		return a.runScoringWorker(ctx, deps, svcs.scoring)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}
	return g.Wait()
}

// startAPIServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server.enabled is false, skipping HTTP server")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var archiveHandler *handler.ArchiveHandler
	if svcs.archive != nil {
		archiveHandler = handler.NewArchiveHandler(svcs.archive, a.logger)
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Users:       handler.NewUserHandler(svcs.users, a.logger),
			Questions:   handler.NewQuestionHandler(svcs.questions, svcs.scoring, a.logger),
			Forecasts:   handler.NewForecastHandler(svcs.intake, a.logger),
			Leaderboard: handler.NewLeaderboardHandler(svcs.leaderboard, a.logger),
			Archive:     archiveHandler,
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runScoringWorker polls the resolution stream and runs a scoring pass for
// every resolved question it sees. It starts from the beginning of the stream
// on startup: scoring is idempotent, so reprocessing old entries only costs a
// no-op pass.
func (a *App) runScoringWorker(ctx context.Context, deps *Dependencies, scoringSvc *service.ScoringService) error {
	interval := a.cfg.Scoring.PollInterval.Duration
	if interval <= 0 {
		interval = 5 * time.Second
	}

	a.logger.InfoContext(ctx, "scoring worker started",
		slog.Duration("poll_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastID := "0"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := deps.SignalBus.StreamRead(ctx, domain.ChannelQuestionResolved, lastID, 50)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.ErrorContext(ctx, "scoring worker: stream read failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID

			var ev struct {
				QuestionID string `json:"question_id"`
			}
			if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.QuestionID == "" {
				a.logger.WarnContext(ctx, "scoring worker: skipping malformed stream entry",
					slog.String("stream_id", msg.ID),
				)
				continue
			}

			summary, err := scoringSvc.ScoreQuestion(ctx, ev.QuestionID)
			if err != nil {
				a.logger.ErrorContext(ctx, "scoring worker: scoring pass failed",
					slog.String("question_id", ev.QuestionID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if summary.Applied == 0 {
				continue
			}

			var clipsMoved int64
			for _, r := range summary.Results {
				clipsMoved += r.ClipsChange
			}
			a.logger.InfoContext(ctx, "scoring worker: question scored",
				slog.String("question_id", ev.QuestionID),
				slog.Int("participants", summary.Participants),
				slog.Int("applied", summary.Applied),
				slog.Int64("clips_moved", clipsMoved),
			)

			title := ev.QuestionID
			if q, qerr := deps.QuestionStore.GetByID(ctx, ev.QuestionID); qerr == nil {
				title = q.Title
			}
			if err := deps.Notifier.Notify(ctx, notify.EventQuestionResolved,
				"Question resolved",
				fmt.Sprintf("%q has been resolved and scored.", title),
			); err != nil {
				a.logger.WarnContext(ctx, "scoring worker: notify failed",
					slog.String("error", err.Error()),
				)
			}
			if err := deps.Notifier.Notify(ctx, notify.EventQuestionScored,
				"Question scored",
				fmt.Sprintf("%q: %d of %d participants paid out, %+d clips moved.",
					title, summary.Applied, summary.Participants, clipsMoved),
			); err != nil {
				a.logger.WarnContext(ctx, "scoring worker: notify failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runArchiveLoop periodically moves the forecast history of questions scored
// longer ago than the retention window into object storage.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Scoring.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	retention := time.Duration(a.cfg.Scoring.ArchiveRetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Scoring.ArchiveRetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		before := time.Now().UTC().Add(-retention)
		archived, err := deps.Archiver.ArchiveQuestions(ctx, before)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.ErrorContext(ctx, "archive loop: pass failed",
				slog.Int64("archived_before_failure", archived),
				slog.String("error", err.Error()),
			)
			if nerr := deps.Notifier.Notify(ctx, notify.EventArchiveFailed,
				"Archive pass failed",
				fmt.Sprintf("Question archive pass failed after %d questions: %v", archived, err),
			); nerr != nil {
				a.logger.WarnContext(ctx, "archive loop: notify failed",
					slog.String("error", nerr.Error()),
				)
			}
			continue
		}
		if archived > 0 {
			a.logger.InfoContext(ctx, "archive loop: pass complete",
				slog.Int64("archived", archived),
			)
		}
	}
}
