// Package repository はデータ永続化の契約（Storage Contract）とその実装を提供する。
//
// リモートのリレーショナルストア（PostgreSQL）とローカルのキーバリューストア（SQLite）の
// 2つのドライバが同一の契約を満たす。境界を越えるレコードは緩い型付けのフィールドマップで、
// 型付きエンティティへの変換は記事ストアとセクションカタログが担う。
package repository

import (
	"context"
	"errors"
)

// Record はストレージ境界でやり取りするフィールドマップ。
// キーはSchemaで定義された正規のフィールド名（snake_case）に限られる。
type Record map[string]any

// Store はストレージ契約。両ドライバはこのインターフェースを同一の意味で実装する。
type Store interface {
	// Insert はレコードを追加し、ID付きのレコードを返す。
	// "id"が空の場合は新しいUUIDを割り当てる。IDが重複する場合はErrConflictを返す。
	Insert(ctx context.Context, table Table, rec Record) (Record, error)

	// SelectAll はテーブルの全レコードを返す。順序は保証しない。
	SelectAll(ctx context.Context, table Table) ([]Record, error)

	// SelectByID は指定IDのレコードを返す。見つからない場合はErrNotFoundを返す。
	SelectByID(ctx context.Context, table Table, id string) (Record, error)

	// SelectWhere は全フィールドが等しいレコードを返す。空の述語はSelectAllと同じ。
	SelectWhere(ctx context.Context, table Table, predicate Record) ([]Record, error)

	// Update は指定フィールドのみを上書きし、更新後のレコードを返す。
	// 見つからない場合はErrNotFoundを返す。"id"の変更は受け付けない。
	Update(ctx context.Context, table Table, id string, partial Record) (Record, error)

	// UpdateIf はexpectの全フィールドが現在値と等しい場合にのみ更新する（compare-and-swap）。
	// 見つからない場合はErrNotFound、条件不一致の場合はErrConflictを返す。
	UpdateIf(ctx context.Context, table Table, id string, expect Record, partial Record) (Record, error)

	// Delete は指定IDのレコードを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, table Table, id string) (bool, error)

	// Ping はバックエンドへの疎通を確認する。
	Ping(ctx context.Context) error

	// Close はバックエンドとの接続を閉じる。
	Close() error
}

var (
	// ErrNotFound は指定IDのレコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrConflict はID重複またはUpdateIfの条件不一致を表す。
	ErrConflict = errors.New("record conflict")
	// ErrUnavailable はバックエンド呼び出しの失敗を表す。ドライバは全ての障害をこれでラップする。
	ErrUnavailable = errors.New("store unavailable")
	// ErrUnknownTable はSchemaに存在しないテーブル名を表す。
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField はSchemaに存在しないフィールド名を表す。
	ErrUnknownField = errors.New("unknown field")
)
