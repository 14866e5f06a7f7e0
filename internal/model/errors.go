// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, article, section, system
	Action   string // ユーザー向け対処方法

	cause error // StoreUnavailable等で元のエラーを保持する
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
)

// ErrorCode はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorを含まない場合は空文字列を返す。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsCode はエラーが指定コードのAPIErrorかどうかを返す。
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "article",
		Action:   "記事IDを確認してください。",
	}
}

// NewSectionNotFoundError はセクション未検出エラーを生成する。
func NewSectionNotFoundError(sectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたセクションが見つかりません: %s", sectionID),
		Category: "section",
		Action:   "セクションIDを確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// reasonには拒否理由（ロール不足、所有者不一致など）を渡す。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "編集者に操作を依頼してください。",
	}
}

// NewInvalidTransitionError は状態遷移表に存在しない遷移のエラーを生成する。
func NewInvalidTransitionError(from, to ArticleStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("記事の状態を %s から %s に変更することはできません。", from, to),
		Category: "article",
		Action:   "現在の状態から許可されている遷移を選択してください。",
	}
}

// NewValidationError は必須項目の未入力エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が不正です (%s): %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewStoreUnavailableError はストレージ障害エラーを生成する。
// 元のエラーはUnwrapで取得できる。コアは再試行しない。
func NewStoreUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewAlreadyExistsError はユーザー重複登録エラーを生成する。
func NewAlreadyExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
