package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedherald/feedherald/internal/handlers"
	"github.com/feedherald/feedherald/pkg/app"
	"github.com/feedherald/feedherald/pkg/config"
	"github.com/feedherald/feedherald/pkg/custom_cache"
	"github.com/feedherald/feedherald/pkg/executor"
	"github.com/feedherald/feedherald/pkg/feeds"
	"github.com/feedherald/feedherald/pkg/health"
	"github.com/feedherald/feedherald/pkg/notify"
	"github.com/feedherald/feedherald/pkg/ports"
	"github.com/feedherald/feedherald/pkg/store"
	"github.com/hashicorp/logutils"
	"github.com/kelseyhightower/envconfig"
)

// Command line flags.
var (
	configPath = flag.String("config", "config.yaml", "path to the feeds configuration file")
	token      = flag.String("token", "", "bot token (overrides the BOT_TOKEN environment variable)")
	debug      = flag.Bool("debug", false, "log at DEBUG level regardless of LOG_LEVEL")
)

func ConfigureLogging(level string) {
	if *debug {
		level = "DEBUG"
	}
	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"},
		MinLevel: logutils.LogLevel(level),
		Writer:   os.Stderr,
	}
	log.SetOutput(filter)
}

func main() {
	flag.Parse()

	var settings config.Settings
	if err := envconfig.Process("", &settings); err != nil {
		log.Fatalf("[FATAL] couldn't process envconfig: %v", err)
	}

	ConfigureLogging(settings.LogLevel)
	log.Printf("[INFO] running VERSION %s", settings.Version)

	botToken, err := config.ResolveToken(*token, &settings)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	custom_cache.InitializeCache(settings.RedisConnectionString)

	feedStore, err := store.Open(conf.DBPath)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer func() {
		if err := feedStore.Close(); err != nil {
			log.Printf("[ERROR] failed to close the database connection: %v", err)
		}
	}()

	storeExecutor := executor.New(settings.StoreWorkers)
	defer storeExecutor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := feeds.NewManager(feedStore, storeExecutor)
	manager.Setup(ctx, conf)

	healthState := health.NewState()
	go func() {
		if err := handlers.New(healthState, settings.Version).Serve(settings.Port); err != nil {
			log.Fatalf("[FATAL] probe server terminated: %v", err)
		}
	}()

	client := notify.NewClient(settings.ApiBaseUrl, botToken)
	if err := client.Connect(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	healthState.SetReady(true)

	pollInterval := time.Duration(settings.PollIntervalMinutes) * time.Minute

	// By default readiness stays true after the initial connect; strict mode
	// keeps revalidating the backend connection.
	if settings.StrictReadiness {
		go watchConnection(ctx, client, healthState, pollInterval)
	}

	deliverFeed := app.NewHandlerDeliverFeed(manager, client, settings.MaxContentLength)

	timer := ports.NewPollFeedsTimer(
		manager,
		deliverFeed,
		conf.Feeds,
		pollInterval,
	)
	timer.Run(ctx)

	log.Print("[INFO] shutting down gracefully")
}

func watchConnection(ctx context.Context, client *notify.Client, state *health.State, interval time.Duration) {
	for {
		select {
		case <-time.After(interval):
			if err := client.Ping(); err != nil {
				log.Printf("[WARN] backend connection check failed: %v", err)
				state.SetReady(false)
			} else {
				state.SetReady(true)
			}
		case <-ctx.Done():
			return
		}
	}
}
