package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/listingd/internal/model"
)

// WebhookSecretHeader は決済プロバイダーが共有シークレットを送るヘッダー名。
const WebhookSecretHeader = "X-Webhook-Secret"

// NewWebhookSecretMiddleware は共有シークレットヘッダーを検証するミドルウェアを返す。
// 一致したリクエストにはシステム主体をコンテキストに注入する。
func NewWebhookSecretMiddleware(secret, actorName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				slog.Warn("webhook secret mismatch", slog.String("path", r.URL.Path))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			ctx := ContextWithActor(r.Context(), model.SystemActor(actorName))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
