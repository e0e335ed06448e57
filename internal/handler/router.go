package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/listingd/internal/metrics"
	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/model"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
	// MetricsHandler は /metrics で公開するハンドラー。nilの場合はルートを登録しない。
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	WebhookSecret     string

	// サービス
	ModerationService  ModerationServiceInterface
	PaymentService     PaymentConfirmer
	SanitizeLogService SanitizeLogServiceInterface
	FraudService       FraudReportServiceInterface
	// ExpiryTrigger は手動の期限切れ実行に使う。nilの場合はルートを登録しない。
	ExpiryTrigger ExpiryTrigger

	ListingConfig ListingHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → RequireRole → CSRF
//
// 状態遷移を伴う操作にはModerationレート制限を追加する。
// 決済Webhookはセッションの代わりに共有シークレットで認証する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	listings := NewListingHandler(deps.ModerationService, deps.SanitizeLogService, logger, deps.ListingConfig)
	fraud := NewFraudHandler(deps.FraudService, logger)
	payment := NewPaymentHandler(deps.PaymentService, logger)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 決済Webhook（共有シークレット）
	r.With(middleware.NewWebhookSecretMiddleware(deps.WebhookSecret, "payment-webhook")).
		Post("/api/webhooks/payment", payment.Confirm)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/listing-statuses", listings.ListStatuses)

		// 管理者
		r.Route("/api/admin/listings", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Get("/", listings.AdminList)
			r.Get("/dashboard", listings.AdminDashboard)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", listings.AdminGet)
				r.With(deps.RateLimiter.ModerationMiddleware()).Post("/transition", listings.AdminTransition)
				r.Get("/fraud-reports", fraud.ListByListing)
				r.Post("/sanitize-logs", listings.AdminAppendSanitizeLog)
			})
		})
		r.With(middleware.RequireRole(model.RoleAdmin)).
			Get("/api/admin/fraud-reports", fraud.ListAll)
		if deps.ExpiryTrigger != nil {
			expiryHandler := NewExpiryHandler(deps.ExpiryTrigger, logger)
			r.With(
				middleware.RequireRole(model.RoleAdmin),
				middleware.NewCSRFMiddleware(deps.CSRFConfig),
				deps.RateLimiter.ModerationMiddleware(),
			).Post("/api/admin/listing-expiration/trigger", expiryHandler.Trigger)
		}

		// 家主
		r.Route("/api/landlord/listings", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleLandlord))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Get("/", listings.LandlordList)
			r.Post("/", listings.LandlordCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(deps.RateLimiter.ModerationMiddleware())
				r.Post("/hide", listings.LandlordHide)
				r.Post("/unhide", listings.LandlordUnhide)
				r.Post("/resubmit", listings.LandlordResubmit)
			})
		})

		// テナント
		r.With(middleware.RequireRole(model.RoleTenant), middleware.NewCSRFMiddleware(deps.CSRFConfig)).
			Post("/api/listings/{id}/fraud-reports", fraud.Submit)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
