package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"attendance_tracker_bot/internal/app"
	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/config"
	idb "attendance_tracker_bot/internal/infra/database"
	"attendance_tracker_bot/internal/infra/httpapi"
	"attendance_tracker_bot/internal/infra/logger"
	"attendance_tracker_bot/internal/infra/memstore"
	inotify "attendance_tracker_bot/internal/infra/notify"
	"attendance_tracker_bot/internal/infra/observability"
	"attendance_tracker_bot/internal/infra/scheduler"
	"attendance_tracker_bot/internal/infra/telegram"
	"attendance_tracker_bot/internal/infra/whatsapp"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var release = "dev"

type stores struct {
	batches batch.Repository
	reports report.Repository
	// credentials holds the linked-device store of the transport.
	credentials *sql.DB
	dialect     string
	health      func(ctx context.Context) error
	close       func()
}

func openStores(cfg *config.AppConfig, log *logrus.Entry) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		credentials, err := whatsapp.OpenSQLite(cfg.SessionStorePath)
		if err != nil {
			return nil, err
		}
		mem := memstore.New()
		log.WithField("path", cfg.SessionStorePath).Warn("Using in-memory batch store; attendance is lost on restart")
		return &stores{
			batches:     mem.Batches(),
			reports:     mem.Reports(),
			credentials: credentials,
			dialect:     "sqlite3",
			health:      credentials.PingContext,
			close:       func() { credentials.Close() },
		}, nil
	}

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := idb.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Database connection established and migrated.")
	return &stores{
		batches:     idb.NewPostgresBatchRepository(db),
		reports:     idb.NewPostgresReportRepository(db),
		credentials: db.DB,
		dialect:     "postgres",
		health:      func(ctx context.Context) error { return idb.Ping(ctx, db) },
		close:       func() { db.Close() },
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"store_driver": cfg.StoreDriver,
		"http_addr":    cfg.HTTPAddr,
	}).Info("Configuration loaded")

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, release)
	if err != nil {
		mainLogger.WithError(err).Warn("Sentry disabled")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open stores")
	}
	defer st.close()

	dialer, err := whatsapp.NewDialer(st.credentials, st.dialect, logger.Component("whatsapp"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not prepare the device store")
	}

	registry := session.NewRegistry()
	digests := app.NewDigestService(registry, st.batches, st.reports, cfg.DigestIgnoreSharing, logger.Component("digest"))
	digestScheduler, err := scheduler.NewDigestScheduler(cfg.DigestCron, digests.SendScheduled, logger.Component("scheduler"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Invalid digest schedule")
	}

	policy := app.AttendancePolicy{
		WindowStartHour:  cfg.TrackingStartHour,
		WindowEndHour:    cfg.TrackingEndHour,
		SubmissionWindow: cfg.SubmissionWindow,
	}
	attendance := app.NewAttendanceService(st.reports, policy, logger.Component("attendance"))
	router := app.NewMessageRouter(st.batches, st.reports, attendance, digests, policy, logger.Component("router"))

	hub := inotify.NewHub(logger.Component("dashboard"))
	sinks := notify.Fanout{hub}

	var (
		bot          *telebot.Bot
		operatorSink *telegram.OperatorSink
	)
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telegram")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		operatorSink = telegram.NewOperatorSink(telegram.NewTelebotAdapter(bot), cfg.OperatorTelegramID, botLogger)
		sinks = append(sinks, operatorSink)
	}

	deps := &session.Deps{
		Dialer:      dialer,
		Credentials: dialer,
		Registry:    registry,
		Sink:        sinks,
		Batches:     st.batches,
		Handler:     router,
		Digest:      digestScheduler,
		Log:         logger.Component("session"),
		Options: session.Options{
			MaxRetries:            cfg.RestartMaxRetries,
			Backoff:               cfg.RestartBackoff,
			CredentialDeleteDelay: cfg.CredentialDeleteDelay,
			PictureTimeout:        cfg.PictureFetchTimeout,
			GroupNameFilters:      cfg.GroupNameFilters,
		},
	}
	sessions := app.NewSessionService(ctx, deps, digests)

	if bot != nil {
		botLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(bot, cfg.OperatorTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, telegram.NewOperatorCommands(sessions, botLogger), cfg.OperatorTelegramID, botLogger)
		observability.Go(mainLogger, "telegram poller", bot.Start)
		mainLogger.Info("Operator bot started")
	}

	server := httpapi.NewServer(&httpapi.Options{
		Address:    cfg.HTTPAddr,
		Sessions:   sessions,
		Dashboards: hub,
		Reports:    st.reports,
		Health:     st.health,
		Logger:     logger.Component("http"),
	})
	observability.Go(mainLogger, "http server", func() {
		if err := server.Start(); err != nil {
			mainLogger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	})

	digestScheduler.Start()

	if cfg.RestoreSessions {
		if err := sessions.RestoreAll(ctx); err != nil {
			mainLogger.WithError(err).Error("Some sessions could not be restored")
		}
	}

	mainLogger.Info("Application setup complete")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown")
	}
	if bot != nil {
		bot.Stop()
		operatorSink.Close()
	}
	digestScheduler.Stop()
	sessions.Shutdown()
	hub.Close()
	mainLogger.Info("Application shut down gracefully.")
}
