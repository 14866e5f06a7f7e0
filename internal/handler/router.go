package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/syndication"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRF               middleware.CSRFConfig
	StatusRecorder     middleware.StatusRecorder // nilの場合は記録しない

	// 認証
	IdentityService IdentityServiceInterface
	AuthConfig      AuthHandlerConfig

	// 記事・セクション
	ArticleService ArticleServiceInterface
	SectionService SectionServiceInterface
	FeedWriter     *syndication.Writer

	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → (CSRF) → (Session → RateLimit)
//
// 公開ルートと/auth/register、/auth/loginはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.IdentityService, deps.AuthConfig)
	articleHandler := NewArticleHandler(deps.ArticleService)
	sectionHandler := NewSectionHandler(deps.SectionService)
	publicHandler := NewPublicHandler(deps.ArticleService, deps.SectionService, deps.FeedWriter, deps.HealthChecker)

	session := middleware.NewSessionMiddleware(deps.IdentityService)
	csrf := middleware.NewCSRFMiddleware(deps.CSRF)

	// --- 認証不要のルート ---
	r.Get("/health", publicHandler.Health)
	r.Get("/feed.xml", publicHandler.Feed)
	r.Route("/api/public", func(r chi.Router) {
		r.Get("/sections", publicHandler.ListSections)
		r.Get("/articles", publicHandler.ListArticles)
		r.Get("/articles/{id}", publicHandler.GetArticle)
	})

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Use(csrf)
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Post("/logout", authHandler.Logout)
		r.With(session).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(csrf)
		r.Use(session)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Post("/", articleHandler.CreateArticle)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", articleHandler.GetArticle)
				r.Patch("/", articleHandler.UpdateArticle)
				r.Delete("/", articleHandler.DeleteArticle)
				r.Post("/status", articleHandler.TransitionArticle)
			})
		})

		r.Route("/sections", func(r chi.Router) {
			r.Get("/", sectionHandler.ListSections)
			r.Post("/", sectionHandler.CreateSection)
			r.Patch("/{id}", sectionHandler.UpdateSection)
			r.Delete("/{id}", sectionHandler.DeleteSection)
		})
	})

	return r
}
