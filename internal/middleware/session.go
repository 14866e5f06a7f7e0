// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdesk/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// callerContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var callerContextKey = contextKey("caller")

// CallerResolver はセッショントークンから呼び出し元を解決する。
// identity.Providerの部分集合として定義する。
type CallerResolver interface {
	GetCurrentUser(ctx context.Context, token string) (*model.Caller, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 呼び出し元をリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401、ストレージ障害には503を返す。
func NewSessionMiddleware(resolver CallerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			caller, err := resolver.GetCurrentUser(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				if model.IsCode(err, model.ErrCodeStoreUnavailable) {
					WriteError(w, r, err)
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if caller == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			noteCaller(r.Context(), caller.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), *caller)))
		})
	}
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(model.Caller)
	if !ok || caller.ID == "" {
		return model.Caller{}, false
	}
	return caller, true
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}
