package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dinner_recipe_bot/internal/config"
	"dinner_recipe_bot/internal/feature/dinner"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
	"dinner_recipe_bot/internal/recipe"
	"dinner_recipe_bot/internal/scheduler"
	"dinner_recipe_bot/internal/store"
	"dinner_recipe_bot/internal/telegram"
	"dinner_recipe_bot/internal/webhook"
)

const (
	storeOpenTimeout    = 10 * time.Second
	storeCloseTimeout   = 5 * time.Second
	httpShutdownTimeout = 10 * time.Second
	loopShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":      "startup",
		"port":       cfg.Port,
		"model":      cfg.OpenAIModel,
		"timezone":   cfg.Timezone,
		"queue_size": cfg.UpdateQueueSize,
	}).Info("configuration loaded")

	metrics.MustRegister()

	openCtx, cancelOpen := context.WithTimeout(context.Background(), storeOpenTimeout)
	settings, err := store.Open(openCtx, cfg)
	cancelOpen()
	if err != nil {
		logger.WithError(err).Error("settings store error")
		fmt.Fprintf(os.Stderr, "settings store error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "store_ready").Info("settings store opened")

	generator, err := recipe.NewGenerator(recipe.Options{
		APIKey:   cfg.OpenAIKey,
		Model:    cfg.OpenAIModel,
		BaseURL:  cfg.OpenAIBaseURL,
		Timeout:  cfg.UpstreamTimeout,
		Language: cfg.Language,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("generator setup error")
		fmt.Fprintf(os.Stderr, "generator setup error: %v\n", err)
		os.Exit(1)
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	triggers := scheduler.New(cfg.Location(), logger)

	service, err := dinner.NewService(dinner.Deps{
		Store:     settings,
		Generator: generator,
		Messenger: tgClient,
		Scheduler: triggers,
		Language:  cfg.Language,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("dinner service setup error")
		fmt.Fprintf(os.Stderr, "dinner service setup error: %v\n", err)
		os.Exit(1)
	}

	loop := telegram.NewLoop(cfg.UpdateQueueSize, service, logger)
	server := webhook.NewServer(webhook.Options{
		Port:   cfg.Port,
		Token:  cfg.BotToken,
		Secret: cfg.WebhookSecret,
	}, loop, settings, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(2)
	go func() {
		defer workers.Done()
		triggers.Run(runCtx)
	}()
	go func() {
		defer workers.Done()
		loop.Run(runCtx, triggers.Fires())
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- server.ListenAndServe()
	}()

	if endpoint := cfg.WebhookEndpoint(); endpoint != "" {
		if err := tgClient.RegisterWebhook(signalCtx, endpoint, cfg.WebhookSecret); err != nil {
			logger.WithField("event", "webhook_register_failed").WithError(err).Error("webhook registration failed; register it manually")
		}
	} else {
		logger.WithField("event", "webhook_skipped").Warn("WEBHOOK_URL is not set; skipping webhook registration")
	}

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case err := <-httpErr:
		if err != nil {
			logger.WithField("event", "http_failed").WithError(err).Error("http server stopped unexpectedly")
		} else {
			logger.WithField("event", "http_stopped_early").Warn("http server stopped before shutdown signal")
		}
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := server.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelHTTP()

	cancelRun()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(loopShutdownTimeout):
		logger.WithField("event", "dispatch_shutdown_timeout").Warn("timed out waiting for dispatch loop to stop")
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), storeCloseTimeout)
	if err := settings.Close(closeCtx); err != nil {
		logger.WithError(err).Error("settings store close error")
	} else {
		logger.WithField("event", "store_closed").Info("settings store closed")
	}
	cancelClose()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
