package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/cache"
	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/contacts"
	"MineSafetyAPI/internal/database"
	"MineSafetyAPI/internal/engine"
	"MineSafetyAPI/internal/events"
	"MineSafetyAPI/internal/handler"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/metrics"
	"MineSafetyAPI/internal/models"
	"MineSafetyAPI/internal/mqtt"
	"MineSafetyAPI/internal/notify"
	"MineSafetyAPI/internal/providers"
	"MineSafetyAPI/internal/repository"
	"MineSafetyAPI/internal/risk"
	"MineSafetyAPI/internal/server"
	"MineSafetyAPI/internal/store"
	"MineSafetyAPI/internal/websocket"
	"MineSafetyAPI/internal/zones"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// 2. Initialize Logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Mode:        cfg.Logging.Mode,
		Format:      cfg.Logging.Format,
		LogFilePath: cfg.Logging.FilePath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		UseColors:   cfg.Logging.UseColors,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()
	logger.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: %v", err)
	}

	cfg.Print()
	log.Info("Starting Mine Safety Risk Engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Zones, thresholds and contacts
	engineFile, err := config.LoadEngineFile(cfg.Engine.ConfigPath)
	if err != nil {
		log.Fatal("Failed to load engine config: %v", err)
	}

	registry, err := zones.NewRegistry(engineFile.Zones)
	if err != nil {
		log.Fatal("Invalid zone configuration: %v", err)
	}
	log.Info("Loaded %d zones and %d contacts", len(engineFile.Zones), len(engineFile.Contacts))

	// 4. Reading store and evaluator
	readingStore := store.New(store.Config{
		Retention:     cfg.Engine.Retention,
		SweepInterval: cfg.Engine.SweepInterval,
		ClockSkew:     cfg.Engine.ClockSkew,
	}, nil, log.With("component", "store"))
	go readingStore.Run(ctx)

	evaluator := risk.NewEvaluator(readingStore, registry, engineFile.Policy(), nil)

	// 5. Optional Database
	var (
		alertOpts      []alerting.Option
		dispatchOpts   []notify.Option
		engineOpts     []engine.Option
		alertHistory   handler.AlertHistory
		readingHistory handler.ReadingHistory
		healthChecks   = map[string]handler.HealthCheck{}
	)

	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatal("Database migration failed: %v", err)
			}
		}

		if err := db.Health(ctx); err != nil {
			log.Fatal("Database health check failed: %v", err)
		}
		log.Info("Database connected successfully")

		alertRepo := repository.NewAlertRepository(db.DB)
		notificationRepo := repository.NewNotificationRepository(db.DB)
		readingRepo := repository.NewReadingRepository(db.DB)

		alertOpts = append(alertOpts, alerting.WithStore(alertRepo))
		dispatchOpts = append(dispatchOpts, notify.WithJobStore(notificationRepo))
		engineOpts = append(engineOpts, engine.WithReadingLog(readingRepo))
		alertHistory = alertRepo
		readingHistory = readingRepo
		healthChecks["database"] = db.Health

		go pruneReadingLog(ctx, readingRepo, cfg.Engine.Retention, log)
	} else {
		log.Warn("Database disabled - alerts and notification jobs are kept in memory only")
	}

	// 6. Alert lifecycle
	alertManager := alerting.NewManager(models.AlertConfig{
		MinLevel:         models.RiskLevel(cfg.Engine.MinAlertLevel),
		AutoResolveAfter: cfg.Engine.AutoResolveAfter,
	}, log.With("component", "alerts"), alertOpts...)

	// 7. Notification channels
	router := buildSenders(cfg, log)
	channels := router.Channels()
	if len(channels) == 0 {
		log.Warn("No notification channel is configured - alerts will not be delivered")
	} else {
		log.Info("Notification channels: %v", channels)
	}

	dispatchOpts = append(dispatchOpts,
		notify.WithAlertStatus(alertManager),
		notify.WithObserver(metrics.DeliveryObserver{}),
		notify.WithZoneNames(registry.Name),
	)
	dispatcher := notify.NewDispatcher(notify.Config{
		MaxRetries:       cfg.Notification.MaxRetries,
		BaseBackoff:      cfg.Notification.BaseBackoff,
		MaxBackoff:       cfg.Notification.MaxBackoff,
		SendTimeout:      cfg.Notification.SendTimeout,
		RatePerSecond:    cfg.Notification.RatePerSecond,
		Burst:            cfg.Notification.Burst,
		BreakerThreshold: uint32(cfg.Notification.BreakerThreshold),
		BreakerTimeout:   cfg.Notification.BreakerTimeout,
	}, router, log.With("component", "notify"), dispatchOpts...)

	directory := contacts.NewDirectory(engineFile.Contacts, engineFile.ContactRouting(), channels)

	// 8. Optional MQTT Client
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(mqtt.ClientConfig{
			MQTT:   &cfg.MQTT,
			Logger: log.With("component", "mqtt"),
		})
		if err != nil {
			log.Fatal("Failed to create MQTT client: %v", err)
		}
		defer func() {
			if err := mqttClient.Disconnect(); err != nil {
				log.Error("Failed to disconnect MQTT: %v", err)
			}
		}()

		if err := mqttClient.Connect(); err != nil {
			log.Fatal("Failed to connect to MQTT broker: %v", err)
		}
		engineOpts = append(engineOpts, engine.WithSiren(mqttClient))
		healthChecks["mqtt"] = func(ctx context.Context) error {
			_, err := mqttClient.Health(ctx)
			return err
		}
	}

	// 9. Optional Redis cache
	if cfg.Redis.Enabled {
		assessmentCache, err := cache.New(&cfg.Redis, log.With("component", "cache"))
		if err != nil {
			log.Fatal("Failed to connect to Redis: %v", err)
		}
		defer assessmentCache.Close()

		engineOpts = append(engineOpts, engine.WithCache(assessmentCache))
		healthChecks["redis"] = assessmentCache.Health

		if !cfg.Database.Enabled {
			if open, err := assessmentCache.OpenAlerts(ctx); err == nil && len(open) > 0 {
				log.Warn("Redis holds %d open alerts from a previous run; they are not restored without a database", len(open))
			}
		}
	}

	// 10. Engine
	riskEngine := engine.New(engine.Config{
		EvaluationInterval: cfg.Engine.EvaluationInterval,
		Concurrency:        cfg.Engine.EvaluationConcurrency,
	}, engine.Deps{
		Zones:      registry,
		Store:      readingStore,
		Evaluator:  evaluator,
		Alerts:     alertManager,
		Dispatcher: dispatcher,
		Recipients: directory,
	}, log.With("component", "engine"), engineOpts...)

	if err := riskEngine.Restore(ctx); err != nil {
		log.Fatal("Failed to restore alert state: %v", err)
	}

	if mqttClient != nil {
		if err := mqttClient.SubscribeReadings(riskEngine); err != nil {
			log.Fatal("Failed to subscribe to readings topic: %v", err)
		}
		log.Info("MQTT subscriptions active")
	}

	// 11. Optional Kafka alert events
	if cfg.Kafka.Enabled {
		publisher, err := events.NewPublisher(&cfg.Kafka, log.With("component", "kafka"))
		if err != nil {
			log.Fatal("Failed to create Kafka publisher: %v", err)
		}
		defer func() {
			stats := publisher.Stats()
			log.Info("Kafka publisher closing: %d events sent, %d failed", stats.Sent, stats.Failed)
			publisher.Close()
		}()

		kafkaEvents, unsubscribe := alertManager.Subscribe(256)
		defer unsubscribe()
		go publisher.Consume(ctx, kafkaEvents)
	}

	// 12. Live alert feed
	hub := websocket.NewHub(log.With("component", "websocket"))
	go hub.Run(ctx)

	hubEvents, unsubscribeHub := alertManager.Subscribe(128)
	defer unsubscribeHub()
	go hub.Forward(ctx, hubEvents)

	go riskEngine.Run(ctx)

	// 13. Initialize Handlers
	readingHandler := handler.NewReadingHandler(riskEngine, readingStore, readingHistory, registry, log)
	zoneHandler := handler.NewZoneHandler(registry, riskEngine, log)
	alertHandler := handler.NewAlertHandler(alertManager, alertHistory, dispatcher, log)
	notificationHandler := handler.NewNotificationHandler(dispatcher, log)
	healthHandler := handler.NewHealthHandler(healthChecks, log)

	// 14. Start HTTP Server
	srv := server.New(cfg, log)
	srv.RegisterHandlers(server.Handlers{
		Readings:      readingHandler,
		Zones:         zoneHandler,
		Alerts:        alertHandler,
		Notifications: notificationHandler,
		Health:        healthHandler,
	}, hub)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed: %v", err)
		}
	}()

	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 15. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	// no new readings may raise alerts while the engine drains
	if mqttClient != nil {
		if err := mqttClient.StopReadings(); err != nil {
			log.Error("Failed to stop MQTT reading intake: %v", err)
		}
	}

	cancel()

	if err := riskEngine.Shutdown(shutdownCtx); err != nil {
		log.Error("Pending notifications were cancelled: %v", err)
	}

	log.Info("Shutdown complete")
}

// buildSenders registers a sender for every channel with credentials. In
// dry-run mode every channel only logs.
func buildSenders(cfg *config.Config, log *logger.Logger) *providers.Router {
	router := providers.NewRouter()

	if cfg.Notification.DryRun {
		for _, ch := range []models.Channel{models.ChannelSMS, models.ChannelWhatsApp, models.ChannelEmail, models.ChannelTelegram} {
			router.Register(ch, providers.LogSender{Channel: ch, Log: log})
		}
		log.Warn("Notification dry-run enabled - messages are logged, not sent")
		return router
	}

	twilio := providers.NewTwilioClient(providers.TwilioConfig{
		AccountSID:   cfg.Twilio.AccountSID,
		AuthToken:    cfg.Twilio.AuthToken,
		FromNumber:   cfg.Twilio.FromNumber,
		WhatsAppFrom: cfg.Twilio.WhatsAppFrom,
		Timeout:      cfg.Notification.SendTimeout,
	})
	if twilio.Configured() {
		router.Register(models.ChannelSMS, twilio.SMS())
		if cfg.Twilio.WhatsAppFrom != "" {
			router.Register(models.ChannelWhatsApp, twilio.WhatsApp())
		}
	}

	email := providers.NewEmailSender(providers.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if email.Configured() {
		router.Register(models.ChannelEmail, email)
	}

	if cfg.Telegram.BotToken != "" {
		telegram, err := providers.NewTelegramSender(cfg.Telegram.BotToken)
		if err != nil {
			log.Error("Telegram channel disabled: %v", err)
		} else {
			router.Register(models.ChannelTelegram, telegram)
		}
	}

	return router
}

// pruneReadingLog applies the reading retention to the durable log once an
// hour.
func pruneReadingLog(ctx context.Context, repo *repository.ReadingRepository, retention time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.DeleteOlderThan(ctx, now.Add(-retention))
			if err != nil {
				log.Error("Failed to prune reading log: %v", err)
				continue
			}
			if n > 0 {
				log.Info("Pruned %d readings from the reading log", n)
			}
		}
	}
}
