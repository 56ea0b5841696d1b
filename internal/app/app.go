package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"systempulse/internal/alerts"
	"systempulse/internal/collector"
	"systempulse/internal/config"
	"systempulse/internal/db"
	"systempulse/internal/hub"
	"systempulse/internal/logger"
	"systempulse/internal/notifier"
	"systempulse/internal/retention"
	"systempulse/internal/source"
	"systempulse/internal/valkey"
	"systempulse/internal/web"
)

const notifyQueueSize = 32

type App struct {
	cfg config.Config
	log zerolog.Logger

	db        *db.Repository
	src       source.Source
	alerts    *alerts.Engine
	hub       *hub.Hub
	collector *collector.Collector
	dispatch  *notifier.Dispatcher
	mirror    *valkey.Mirror
	retention *retention.Service
	notify    *notifier.Telegram
	web       *web.Server

	baseCtx    context.Context
	cancelBase context.CancelFunc
	httpSrv    *http.Server
}

func New(cfg config.Config, version string, root zerolog.Logger) (*App, error) {
	sqldb, err := db.Open(db.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DSN: cfg.DBDSN})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb, cfg.DBDriver); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo, err := db.NewRepository(sqldb, cfg.DBDriver)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	src, err := source.New(cfg.MetricsSource)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	token, chatID, err := repo.LoadTelegramSettings(context.Background())
	if err != nil {
		root.Warn().Err(err).Msg("could not load stored telegram settings")
	}
	if token == "" {
		token = cfg.TelegramBotToken
	}
	if chatID == "" {
		chatID = cfg.TelegramChatID
	}
	n := notifier.NewTelegram(token, chatID)

	engine := alerts.NewEngine(logger.Module(root, "alerts"), cfg.AlertCooldown)
	h := hub.New(logger.Module(root, "hub"), version)
	dispatch := notifier.NewDispatcher(logger.Module(root, "notifier"), n, notifyQueueSize)
	sinks := []collector.Sink{dispatch}

	var mirror *valkey.Mirror
	if cfg.ValkeyAddr != "" {
		mirror, err = valkey.New(valkey.Options{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			Prefix:   cfg.ValkeyPrefix,
		}, logger.Module(root, "valkey"))
		if err != nil {
			_ = sqldb.Close()
			return nil, err
		}
		sinks = append(sinks, mirror)
	}

	col := collector.New(logger.Module(root, "collector"), src, repo, engine, h, collector.Options{
		PersistInterval:   cfg.PersistInterval,
		BroadcastInterval: cfg.BroadcastInterval,
	}, sinks...)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	w := web.NewServer(baseCtx, web.Deps{
		Source:      src,
		Repo:        repo,
		Collector:   col,
		Engine:      engine,
		Hub:         h,
		Telegram:    n,
		FrontendURL: cfg.FrontendURL,
	}, logger.Module(root, "http"))

	app := &App{
		cfg:        cfg,
		log:        root,
		db:         repo,
		src:        src,
		alerts:     engine,
		hub:        h,
		collector:  col,
		dispatch:   dispatch,
		mirror:     mirror,
		retention:  retention.NewService(repo, cfg.RetentionDays, cfg.ArchiveDir, logger.Module(root, "retention")),
		notify:     n,
		web:        w,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return app, nil
}

// Run serves until ctx is cancelled, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("http server listening")
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.RetentionInterval)
		defer ticker.Stop()
		// Immediate first run
		a.retention.Run(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.retention.Run(gctx)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	a.collector.Start(a.baseCtx)
	return g.Wait()
}

func (a *App) shutdown() error {
	a.log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.collector.Stop()
	a.cancelBase()
	a.hub.Cleanup()
	if a.mirror != nil {
		a.mirror.Close()
	}
	if err := a.db.DB().Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	return errors.Join(errs...)
}
