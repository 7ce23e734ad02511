// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookworms/internal/bot"
	"bookworms/internal/calendar"
	"bookworms/internal/config"
	"bookworms/internal/db"
	"bookworms/internal/domain"
	apihttp "bookworms/internal/http"
	"bookworms/internal/http/handlers"
	"bookworms/internal/http/middleware"
	"bookworms/internal/jobs"
	"bookworms/internal/logger"
	"bookworms/internal/notify"
	"bookworms/internal/penalty"
	"bookworms/internal/roster"
	"bookworms/internal/scheduler"
	"bookworms/internal/service"
	"bookworms/internal/store"
	"bookworms/internal/telegram"
	"bookworms/internal/ws"
)

// App is the assembled service.
type App struct {
	backend   store.Backend
	scheduler *scheduler.Scheduler
	hub       *ws.Hub
	bot       *bot.Bot
	server    *http.Server
	log       *slog.Logger
}

// New opens the store, authorizes the bot and builds every component.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	service.InitJWT(cfg.JWTSecret)

	cal, err := calendar.New(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	backend, err := db.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	s := store.New(backend, cal)

	tg, err := telegram.NewClient(cfg.BotToken, cfg.GroupID, cfg.AdminTelegramIDs, cfg.TransportTimeout)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("%w: authorize bot: %v", domain.ErrExternalTransport, err)
	}

	hub := ws.NewHub()
	dispatcher := notify.NewDispatcher(tg, tg.GroupRecipient(), notify.WithTimeout(cfg.TransportTimeout))
	penalties := penalty.NewEngine(s, tg, dispatcher, cfg.TransportTimeout)
	reconciler := roster.NewReconciler(s, tg, cfg.TransportTimeout)

	sched := scheduler.New(cfg.JobTimeout)
	sched.OnFinish(func(r scheduler.Result) {
		details := map[string]any{
			"trigger":  r.Trigger,
			"run_id":   r.RunID,
			"manual":   r.Manual,
			"duration": r.Duration.String(),
		}
		if r.Err != nil {
			details["error"] = r.Err.Error()
		}
		hub.Publish(domain.NewEvent(domain.EventTriggerFinished, details))
	})
	if err := jobs.New(s, penalties, reconciler, dispatcher).Register(sched, cfg.Schedule); err != nil {
		backend.Close()
		return nil, err
	}

	tasks := service.NewTaskService(s, dispatcher, hub, cfg.PublishHour)
	members := service.NewMemberService(s, reconciler, hub)
	admin := service.NewAdminService(s, penalties, sched, hub)
	auth := service.NewAuthService(cfg.BotToken, cfg.InitDataMaxAge, reconciler)

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	router := apihttp.NewRouter(apihttp.Deps{
		Handler:       handlers.NewHandler(tasks, admin, auth, sched),
		Health:        handlers.NewHealthHandler(s, sched, hub, version),
		Hub:           hub,
		AllowedOrigin: cfg.AllowedOrigin,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	a := &App{
		backend:   backend,
		scheduler: sched,
		hub:       hub,
		server: &http.Server{
			Addr:              ":" + cfg.AppPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.With("component", "app"),
	}
	if cfg.BotEnabled {
		a.bot = bot.New(tg.API(), members, admin, cfg.GroupID, cfg.WebAppURL)
	}
	return a, nil
}

// Run serves until ctx is cancelled, then shuts down in order: scheduler, bot,
// HTTP server, event hub, store.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	if a.bot != nil {
		go a.bot.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server started", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-errCh:
		a.log.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.shutdown(shutdownCtx)
	return runErr
}

func (a *App) shutdown(ctx context.Context) {
	a.scheduler.Stop(ctx)
	if a.bot != nil {
		a.bot.Stop(ctx)
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("server forced to shutdown", "error", err)
	}
	a.hub.Close()
	middleware.CloseRedisRateLimiter()
	a.backend.Close()
	a.log.Info("server exited")
}

// RunTrigger runs one trigger in the foreground and releases resources.
func (a *App) RunTrigger(ctx context.Context, name string) (scheduler.Result, error) {
	defer a.Close()
	return a.scheduler.RunNow(ctx, name)
}

// Close releases the store and event hub without serving.
func (a *App) Close() {
	a.hub.Close()
	middleware.CloseRedisRateLimiter()
	a.backend.Close()
}
