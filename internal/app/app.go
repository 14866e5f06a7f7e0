package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/config"
	"github.com/hitoshi/newsdesk/internal/database"
	"github.com/hitoshi/newsdesk/internal/handler"
	"github.com/hitoshi/newsdesk/internal/identity"
	"github.com/hitoshi/newsdesk/internal/lifecycle"
	"github.com/hitoshi/newsdesk/internal/logger"
	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/section"
	"github.com/hitoshi/newsdesk/internal/security"
	"github.com/hitoshi/newsdesk/internal/syndication"
	"github.com/hitoshi/newsdesk/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでグレースフルに終了する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, w, args)
}

func run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
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
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	case CommandSeed:
		return runSeed(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openStore はDATABASE_URLに従ってストレージを開く。recorderがnilでなければ計測を付与する。
func openStore(ctx context.Context, cfg *config.Config, recorder repository.StoreRecorder) (repository.Store, error) {
	store, err := repository.Open(ctx, repository.OpenOptions{
		DatabaseURL: cfg.DatabaseURL,
		LocalPath:   cfg.LocalStorePath,
		Fallback:    cfg.StorageFallback,
		PingTimeout: cfg.StorePingTimeout,
		Logger:      slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if recorder != nil {
		return repository.NewInstrumentedStore(store, recorder), nil
	}
	return store, nil
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig はreq/min単位の設定をreq/secに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLogin > 0 {
		rl.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
		rl.LoginBurst = cfg.RateLimitLogin
	}
	return rl
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、APIサーバーとメトリクスサーバーを起動する。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. メトリクスとストレージ
	reg, collector := newMetricsRegistry()

	store, err := openStore(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. ドメインサービスの初期化
	engine := lifecycle.NewEngine(collector)
	sanitizer := security.NewContentSanitizer()

	identityService := identity.NewService(store, identity.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})
	articleService := article.NewService(store, engine, sanitizer, article.WithTransitionRecorder(collector))
	sectionService := section.NewService(store, engine)

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		StatusRecorder: collector,

		IdentityService: identityService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ArticleService: articleService,
		SectionService: sectionService,
		FeedWriter: syndication.NewWriter(syndication.Channel{
			Title:       cfg.FeedTitle,
			Description: cfg.FeedDescription,
			BaseURL:     cfg.BaseURL,
			Language:    cfg.FeedLanguage,
		}, sanitizer),

		HealthChecker: store,
	})

	// 4. HTTPサーバーの起動
	servers := []*http.Server{{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
	if cfg.MetricsPort != "" {
		servers = append(servers, newMetricsServer(cfg.MetricsPort, reg))
	}

	return runServers(ctx, servers...)
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行し、メトリクスを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	reg, collector := newMetricsRegistry()

	store, err := openStore(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer store.Close()

	identityService := identity.NewService(store, identity.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})

	job := cleanup.NewCleanupJob(identityService, collector, slog.Default())
	job.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", job.Interval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		job.Loop(gctx)
		return nil
	})
	if cfg.MetricsPort != "" {
		g.Go(func() error {
			return runServers(gctx, newMetricsServer(cfg.MetricsPort, reg))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// ローカルストアはオープン時にスキーマを作成するため、開いて閉じるだけでよい。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL != "" {
		target, err := database.ParseURL(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if target.Backend == database.BackendPostgres {
			slog.Info("running database migrations",
				slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			)
			if err := database.RunMigrations(target.DSN); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			slog.Info("database migrations completed successfully")
			return nil
		}
	}

	store, err := openStore(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("local store schema is ready")
	return store.Close()
}

// runSeed はセクションカタログが空の場合に既定のセクションを投入する。
func runSeed(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := section.NewService(store, lifecycle.NewEngine(nil)).SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	if n == 0 {
		slog.Info("sections already exist, skipping seed")
	}
	return nil
}

func newMetricsServer(port string, reg *prometheus.Registry) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runServers はサーバー群を起動し、ctxのキャンセルまたはいずれかの起動失敗でグレースフルシャットダウンする。
func runServers(ctx context.Context, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server %s shutdown failed: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("servers stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
