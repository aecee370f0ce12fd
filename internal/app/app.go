package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pagewatch/internal/ai"
	"github.com/MrSnakeDoc/pagewatch/internal/artifacts"
	"github.com/MrSnakeDoc/pagewatch/internal/config"
	"github.com/MrSnakeDoc/pagewatch/internal/fetcher"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver"
	"github.com/MrSnakeDoc/pagewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/notify"
	"github.com/MrSnakeDoc/pagewatch/internal/pipeline"
	"github.com/MrSnakeDoc/pagewatch/internal/prompts"
	"github.com/MrSnakeDoc/pagewatch/internal/proxylist"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
	"github.com/MrSnakeDoc/pagewatch/internal/redis"
	"github.com/MrSnakeDoc/pagewatch/internal/scheduler"
	"github.com/MrSnakeDoc/pagewatch/internal/screenshot"
	"github.com/MrSnakeDoc/pagewatch/internal/store"
	"github.com/MrSnakeDoc/pagewatch/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/pagewatch/internal/store/redis"
	"github.com/MrSnakeDoc/pagewatch/internal/store/sqldb"
	"github.com/MrSnakeDoc/pagewatch/internal/utils"
	"github.com/MrSnakeDoc/pagewatch/internal/version"
	"github.com/MrSnakeDoc/pagewatch/internal/worker"
)

type App struct {
	cfg          *config.Config
	logger       logger.Logger
	server       *httpserver.Server
	redisClient  *goredis.Client
	records      store.Store
	jobs         *scheduler.Runner
	workers      *worker.Pool
	retention    *scheduler.Retention
	seedReloader *scheduler.SeedReloader
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	now := time.Now

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(context.Background(), redis.ConnectOptions{
		URL:            cfg.RedisURL,
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	records, err := openStore(cfg)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	loggerClient.Info("record store ready", logger.String("driver", cfg.StoreDriver))

	files, err := artifacts.New(cfg.ArtifactsDir, loggerClient)
	if err != nil {
		_ = redisClient.Close()
		_ = records.Close()
		return nil, fmt.Errorf("artifacts: %w", err)
	}

	promptService, err := prompts.New(cfg.PromptsFile, loggerClient)
	if err != nil {
		_ = redisClient.Close()
		_ = records.Close()
		return nil, fmt.Errorf("prompts: %w", err)
	}

	jobQueue := queue.New(redisClient, cfg.DedupTTL, now)
	pending := redisstore.NewStore(redisClient)

	// Detection
	gemini := ai.NewGemini(cfg.GeminiKeys, cfg.GeminiModel, loggerClient)
	if len(cfg.GeminiKeys) == 0 {
		loggerClient.Warn("no Gemini key configured, every comparison will be recorded as an error")
	}
	gen := textGenerator(cfg, gemini, loggerClient)

	// Delivery
	dispatcher := notify.NewDispatcher(loggerClient,
		notify.NewEmail(notify.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		}),
		notify.NewTelegram(notify.TelegramConfig{
			APIBase: cfg.TelegramAPIBase,
			Token:   cfg.TelegramToken,
			ChatID:  cfg.TelegramChatID,
		}),
		notify.NewTeams(),
	)
	router := notify.NewRouter(records, pending, dispatcher, gen, promptService, now, loggerClient)

	checks := pipeline.New(pipeline.Config{
		BackupProxy:        cfg.BackupProxy,
		ScreenshotAttempts: cfg.ScreenshotAttempts,
	}, pipeline.Deps{
		Records: records,
		Fetcher: fetcher.New(fetcher.Config{
			Attempts: cfg.FetchAttempts,
			Timeout:  cfg.FetchTimeout,
		}, loggerClient),
		Capturer: screenshot.NewChrome(screenshot.Config{
			Timeout:  cfg.ScreenshotTimeout,
			ExecPath: cfg.ChromePath,
		}, loggerClient),
		Proxies:   proxylist.New(cfg.ProxyListURL, loggerClient),
		Artifacts: files,
		Detector:  gemini,
		Prompts:   promptService,
		Router:    router,
		Alerts:    dispatcher,
		Now:       now,
		Log:       loggerClient,
	})

	workers := worker.New(jobQueue, checks, cfg.WorkerConcurrency, loggerClient)

	// Periodic jobs
	dueChecker := scheduler.NewDueChecker(records, jobQueue, now, cfg.Location, loggerClient)
	summaries := scheduler.NewSummaryAggregator(
		records,
		records,
		pending,
		router,
		cfg.SummaryWindow,
		now,
		cfg.Location,
		loggerClient,
	)

	jobs := scheduler.NewRunner(loggerClient, now)
	if err := jobs.Add(scheduler.JobDueCheck, cfg.DueCheckCron, func(ctx context.Context) (any, error) {
		return dueChecker.Tick(ctx)
	}); err != nil {
		_ = redisClient.Close()
		_ = records.Close()
		return nil, fmt.Errorf("due-check job: %w", err)
	}
	if err := jobs.Add(scheduler.JobSummary, cfg.SummaryCron, func(ctx context.Context) (any, error) {
		return summaries.Tick(ctx)
	}); err != nil {
		_ = redisClient.Close()
		_ = records.Close()
		return nil, fmt.Errorf("summary job: %w", err)
	}

	retention := scheduler.NewRetention(
		records,
		files,
		loggerClient,
		cfg.RetentionInterval,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		now,
	)

	// Initialize seed reloader (if a seed file is configured)
	var seedReloader *scheduler.SeedReloader
	var reloadTrigger chan struct{}
	if cfg.SeedFile != "" {
		loggerClient.Info("seed file configured, initializing seed reloader",
			logger.String("file", cfg.SeedFile))
		reloadTrigger = make(chan struct{}, 1)
		seedReloader = scheduler.NewSeedReloader(
			cfg.SeedFile,
			records,
			loggerClient,
			cfg.SeedReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("seed file not configured, users and targets come from the store only")
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:        loggerClient,
		StartTime:     now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       now,
		AllowedHosts:  cfg.AllowedHosts,
		AllowedCIDRS:  cfg.AllowedCIDRS,
		TrustProxy:    cfg.TrustProxy,
		AdminKey:      cfg.AdminKey,
		RateBurst:     cfg.RateBurst,
		RatePerMin:    cfg.RatePerMin,
		RedisClient:   redisClient,
		Records:       records,
		Queue:         jobQueue,
		Checker:       checks,
		Jobs:          jobs,
		Prompts:       promptService,
		Cleaner:       retention,
		ReloadTrigger: reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:          cfg,
		logger:       loggerClient,
		server:       server,
		redisClient:  redisClient,
		records:      records,
		jobs:         jobs,
		workers:      workers,
		retention:    retention,
		seedReloader: seedReloader,
	}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		return memory.New(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := sqldb.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return s, nil
}

// textGenerator picks the model that writes notification and summary text.
// A nil Generator makes the router fall back to templates.
func textGenerator(cfg *config.Config, gemini *ai.Gemini, log logger.Logger) ai.Generator {
	switch cfg.TextGenerator {
	case "gemini":
		return gemini
	case "claude":
		return ai.NewClaude(cfg.AnthropicKey, cfg.ClaudeModel)
	case "none":
		return nil
	}

	// auto
	switch {
	case len(cfg.GeminiKeys) > 0:
		return gemini
	case cfg.AnthropicKey != "":
		return ai.NewClaude(cfg.AnthropicKey, cfg.ClaudeModel)
	default:
		log.Info("no text model configured, notifications use templates")
		return nil
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting pagewatch v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start seed reloader (loads users and targets, then refreshes periodically)
	if a.seedReloader != nil {
		if err := a.seedReloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.SeedReloadInterval))
	}

	if err := a.workers.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	a.logger.Info("worker pool started",
		logger.Int("workers", a.cfg.WorkerConcurrency))

	a.jobs.Start(ctx)

	if err := a.retention.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention: %w", err)
	}
	a.logger.Info("retention started",
		logger.Int("days", a.cfg.RetentionDays),
		logger.Duration("interval", a.cfg.RetentionInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server stopped", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// No new jobs, then let running checks finish.
	a.jobs.Stop()
	if a.seedReloader != nil {
		a.seedReloader.Stop()
	}
	a.retention.Stop()
	a.workers.Stop()

	utils.CloseLogged(a.records, "record store", a.logger)
	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, "redis", a.logger)
	}

	a.logger.Info("✅ pagewatch stopped cleanly")
	_ = a.logger.Sync()
	return runErr
}
