// Package identity はユーザー登録、ログイン、セッション管理を提供する。
// コアには認証済みの呼び出し元（model.Caller）のみを渡す。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// Provider は認証基盤のインターフェース。
// ローカル実装（Service）以外に外部IdPを差し込めるよう抽象化している。
type Provider interface {
	// GetCurrentUser はセッショントークンから呼び出し元を解決する。未ログインの場合はnilを返す。
	GetCurrentUser(ctx context.Context, token string) (*model.Caller, error)
	Login(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	Register(ctx context.Context, email, password, displayName string, role model.Role) (*model.User, error)
	Logout(ctx context.Context, token string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service はストレージ契約上にユーザーとセッションを保存するローカルの認証基盤。
type Service struct {
	store  repository.Store
	config ServiceConfig
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(store repository.Store, config ServiceConfig) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 86400
	}
	return &Service{store: store, config: config, now: time.Now}
}

// Register はユーザーを登録する。
// ロール未指定の場合はreporter、表示名未指定の場合はメールアドレスのローカル部を使用する。
func (s *Service) Register(ctx context.Context, email, password, displayName string, role model.Role) (*model.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("email", "メールアドレスの形式が不正です")
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError("password", fmt.Sprintf("%d文字以上で入力してください", minPasswordLength))
	}
	if role == "" {
		role = model.RoleReporter
	}
	if !role.Valid() {
		return nil, model.NewValidationError("role", fmt.Sprintf("未定義のロールです: %s", role))
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	existing, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError(email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rec, err := s.store.Insert(ctx, repository.TableUsers, repository.Record{
		"email":         email,
		"display_name":  displayName,
		"role":          role,
		"password_hash": string(hash),
		"created_at":    s.now(),
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, model.NewAlreadyExistsError(email)
	}
	if err != nil {
		return nil, storeError("failed to create user", err)
	}

	user := userFromRecord(rec)
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザー不在とパスワード不一致は区別せずInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, err := s.findUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// Logout はセッションを破棄する。存在しないセッションの場合も成功とする。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.store.Delete(ctx, repository.TableSessions, token); err != nil {
		return storeError("failed to delete session", err)
	}
	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在の呼び出し元を取得する。
// セッションが存在しない、期限切れ、またはユーザーが削除済みの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.Caller, error) {
	if token == "" {
		return nil, nil
	}

	rec, err := s.store.SelectByID(ctx, repository.TableSessions, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("failed to find session", err)
	}
	session := sessionFromRecord(rec)
	if !session.ExpiresAt.After(s.now()) {
		return nil, nil
	}

	userRec, err := s.store.SelectByID(ctx, repository.TableUsers, session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("failed to find user", err)
	}

	caller := userFromRecord(userRec).Caller()
	return &caller, nil
}

// DeleteExpiredSessions は期限切れのセッションを削除し、削除件数を返す。
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	recs, err := s.store.SelectAll(ctx, repository.TableSessions)
	if err != nil {
		return 0, storeError("failed to list sessions", err)
	}

	now := s.now()
	var deleted int64
	for _, rec := range recs {
		if repository.Time(rec, "expires_at").After(now) {
			continue
		}
		ok, err := s.store.Delete(ctx, repository.TableSessions, repository.String(rec, repository.FieldID))
		if err != nil {
			return deleted, storeError("failed to delete session", err)
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if _, err := s.store.Insert(ctx, repository.TableSessions, repository.Record{
		repository.FieldID: session.ID,
		"user_id":          session.UserID,
		"expires_at":       session.ExpiresAt,
		"created_at":       session.CreatedAt,
	}); err != nil {
		return nil, storeError("failed to save session", err)
	}

	return session, nil
}

func (s *Service) findUserByEmail(ctx context.Context, email string) (*model.User, error) {
	recs, err := s.store.SelectWhere(ctx, repository.TableUsers, repository.Record{"email": email})
	if err != nil {
		return nil, storeError("failed to find user", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return userFromRecord(recs[0]), nil
}

func userFromRecord(rec repository.Record) *model.User {
	return &model.User{
		ID:           repository.String(rec, repository.FieldID),
		Email:        repository.String(rec, "email"),
		DisplayName:  repository.String(rec, "display_name"),
		Role:         model.Role(repository.String(rec, "role")),
		PasswordHash: repository.String(rec, "password_hash"),
		CreatedAt:    repository.Time(rec, "created_at"),
	}
}

func sessionFromRecord(rec repository.Record) *model.Session {
	return &model.Session{
		ID:        repository.String(rec, repository.FieldID),
		UserID:    repository.String(rec, "user_id"),
		ExpiresAt: repository.Time(rec, "expires_at"),
		CreatedAt: repository.Time(rec, "created_at"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// storeError はバックエンド障害をStoreUnavailableに変換する。
func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return model.NewStoreUnavailableError(err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ Provider = (*Service)(nil)
