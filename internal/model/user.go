// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールを表す。登録後は変更できない。
type Role string

const (
	// RoleReporter は記事を執筆するが公開・削除はできないロール。
	RoleReporter Role = "reporter"
	// RoleEditor は記事とセクションに対する全権限を持つロール。
	RoleEditor Role = "editor"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleReporter || r == RoleEditor
}

// User は編集部のユーザーを表す。
// 他のエンティティからはIDのみで参照され、埋め込まれることはない。
type User struct {
	ID           string
	DisplayName  string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Caller はコアの各操作に明示的に渡される呼び出し元の識別情報。
// 認証基盤が解決したユーザーの射影で、コアからは読み取り専用として扱う。
type Caller struct {
	ID          string
	DisplayName string
	Role        Role
}

// Caller はUserからCallerを生成する。
func (u *User) Caller() Caller {
	return Caller{ID: u.ID, DisplayName: u.DisplayName, Role: u.Role}
}

// IsEditor は呼び出し元が編集者かどうかを返す。
func (c Caller) IsEditor() bool {
	return c.Role == RoleEditor
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
