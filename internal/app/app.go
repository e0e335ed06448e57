package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/listingd/internal/config"
	"github.com/hitoshi/listingd/internal/database"
	"github.com/hitoshi/listingd/internal/fraud"
	"github.com/hitoshi/listingd/internal/handler"
	"github.com/hitoshi/listingd/internal/logger"
	"github.com/hitoshi/listingd/internal/metrics"
	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/moderation"
	"github.com/hitoshi/listingd/internal/notify"
	"github.com/hitoshi/listingd/internal/repository"
	"github.com/hitoshi/listingd/internal/sanitizelog"
	"github.com/hitoshi/listingd/internal/security"
	"github.com/hitoshi/listingd/internal/worker/cleanup"
	"github.com/hitoshi/listingd/internal/worker/expiry"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level.Set(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はGo/プロセスの標準メトリクスを含むレジストリとコレクターを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newModerationService は通知ディスパッチャを含めてモデレーションサービスを構築する。
// 通知先URLが不正な場合は起動を中止する。
// 呼び出し側はシャットダウン時にディスパッチャをCloseして送信待ちのイベントを流し切る。
func newModerationService(cfg *config.Config, listingRepo repository.ListingRepository, collector metrics.MetricsCollector) (*moderation.Service, *notify.Dispatcher, error) {
	notifier, err := notify.New(cfg.NotifyWebhookURL, cfg.NotifyTimeout, security.NewSSRFGuard())
	if err != nil {
		return nil, nil, err
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyQueueSize, cfg.NotifyTimeout, slog.Default())
	svc := moderation.NewService(
		listingRepo, dispatcher, collector, slog.Default(),
		moderation.WithListingDuration(cfg.ListingDuration),
	)
	return svc, dispatcher, nil
}

// newExpiryScheduler は設定値で期限切れスケジューラを構築する。
// ワーカーの定期実行とAPIの手動実行で同じ設定を使う。
func newExpiryScheduler(cfg *config.Config, listingRepo repository.ListingRepository, expirer expiry.ListingExpirer, collector metrics.MetricsCollector) *expiry.Scheduler {
	return expiry.NewScheduler(
		listingRepo, expirer, collector, slog.Default(),
		expiry.WithMaxConcurrency(cfg.ExpiryMaxConcurrent),
		expiry.WithMaxRetries(cfg.ExpiryMaxRetries),
		expiry.WithBatchSize(cfg.ExpiryBatchSize),
	)
}

// closeDispatcher は送信待ちの通知を流し切る。タイムアウトした場合は残りを破棄する。
func closeDispatcher(d *notify.Dispatcher, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("pending listing events dropped on shutdown", slog.String("error", err.Error()))
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	listingRepo := repository.NewPostgresListingRepo(db)
	sanitizeLogRepo := repository.NewPostgresSanitizeLogRepo(db)
	fraudRepo := repository.NewPostgresFraudReportRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	reg, collector := newMetrics()
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	moderationService, dispatcher, err := newModerationService(cfg, listingRepo, collector)
	if err != nil {
		return err
	}
	defer closeDispatcher(dispatcher, 10*time.Second)
	recorder := sanitizelog.NewRecorder(sanitizeLogRepo, listingRepo, sanitizer, collector, slog.Default())
	fraudService := fraud.NewService(fraudRepo, listingRepo, sanitizer, collector, slog.Default())

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitModeration),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,

		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:   rateLimiter,
		WebhookSecret: cfg.PaymentWebhookSecret,

		ModerationService:  moderationService,
		PaymentService:     moderationService,
		SanitizeLogService: recorder,
		FraudService:       fraudService,
		ExpiryTrigger:      newExpiryScheduler(cfg, listingRepo, moderationService, collector),

		ListingConfig: handler.ListingHandlerConfig{
			HistoryGracePeriod: cfg.HistoryGracePeriod,
		},
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れスケジューラとセッション削除ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとサービスの初期化
	listingRepo := repository.NewPostgresListingRepo(db)
	reg, collector := newMetrics()

	moderationService, dispatcher, err := newModerationService(cfg, listingRepo, collector)
	if err != nil {
		return err
	}
	defer closeDispatcher(dispatcher, 10*time.Second)

	// 3. スケジューラとクリーンアップジョブの初期化
	scheduler := newExpiryScheduler(cfg, listingRepo, moderationService, collector)

	cleanupJob := cleanup.NewSessionCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.SessionRetentionDays

	// 4. メトリクスサーバー
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("expiry_interval", cfg.ExpiryInterval),
		slog.Int("max_concurrent", cfg.ExpiryMaxConcurrent),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	// セッション削除ジョブをバックグラウンドで実行
	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	// 期限切れスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ExpiryInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
