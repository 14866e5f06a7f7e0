package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/newsdesk/internal/model"
)

// --- モック定義 ---

type mockCallerResolver struct {
	getCurrentUserFn func(ctx context.Context, token string) (*model.Caller, error)
}

func (m *mockCallerResolver) GetCurrentUser(ctx context.Context, token string) (*model.Caller, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, token)
	}
	return nil, nil
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsCaller(t *testing.T) {
	resolver := &mockCallerResolver{
		getCurrentUserFn: func(ctx context.Context, token string) (*model.Caller, error) {
			if token == "valid-token" {
				return &model.Caller{ID: "user-123", DisplayName: "Rita", Role: model.RoleReporter}, nil
			}
			return nil, nil
		},
	}

	var captured model.Caller
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			t.Error("expected caller in context")
		}
		captured = caller
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured.ID != "user-123" || captured.Role != model.RoleReporter {
		t.Errorf("caller = %+v", captured)
	}
}

func TestSessionMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		cookie   *http.Cookie
		resolver *mockCallerResolver
		want     int
	}{
		{"Cookieなし", nil, &mockCallerResolver{}, http.StatusUnauthorized},
		{"空のCookie", &http.Cookie{Name: SessionCookieName, Value: ""}, &mockCallerResolver{}, http.StatusUnauthorized},
		{"期限切れまたは不明なセッション", &http.Cookie{Name: SessionCookieName, Value: "expired"}, &mockCallerResolver{}, http.StatusUnauthorized},
		{
			"解決時のエラー",
			&http.Cookie{Name: SessionCookieName, Value: "x"},
			&mockCallerResolver{getCurrentUserFn: func(context.Context, string) (*model.Caller, error) {
				return nil, context.DeadlineExceeded
			}},
			http.StatusUnauthorized,
		},
		{
			"ストレージ障害",
			&http.Cookie{Name: SessionCookieName, Value: "x"},
			&mockCallerResolver{getCurrentUserFn: func(context.Context, string) (*model.Caller, error) {
				return nil, model.NewStoreUnavailableError(errors.New("down"))
			}},
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/articles", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCallerFromContext(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Error("expected no caller in empty context")
	}

	ctx := ContextWithCaller(context.Background(), model.Caller{ID: "ed-1", Role: model.RoleEditor})
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.ID != "ed-1" || !caller.IsEditor() {
		t.Errorf("caller = %+v, ok = %v", caller, ok)
	}
}
