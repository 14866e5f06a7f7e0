package repository

import (
	"fmt"
	"sort"
)

// Table はストレージ上のテーブル（ローカルストアではキー空間）名。
type Table string

const (
	TableArticles Table = "articles"
	TableSections Table = "sections"
	TableUsers    Table = "users"
	TableSessions Table = "sessions"
)

// FieldID は全テーブル共通の主キーフィールド名。
const FieldID = "id"

// Schema はテーブルごとの正規フィールド名。両ドライバがこの定義でフィールド名を検証するため、
// ドライバ間でフィールド名の揺れが生じない。
// PostgreSQLドライバではカラム名としてそのまま使用する。
var Schema = map[Table][]string{
	TableArticles: {
		"id", "title", "subtitle", "body", "section_name", "image_ref",
		"author_id", "author_display_name", "status", "created_at", "updated_at",
	},
	TableSections: {
		"id", "name", "description", "sort_order", "active",
	},
	TableUsers: {
		"id", "email", "display_name", "role", "password_hash", "created_at",
	},
	TableSessions: {
		"id", "user_id", "expires_at", "created_at",
	},
}

// UniqueFields はテーブルごとの一意制約付きフィールド。
// PostgreSQLではマイグレーションの一意インデックスが、ローカルストアではドライバが同じ制約を検査する。
var UniqueFields = map[Table][]string{
	TableUsers: {"email"},
}

// columns はテーブルのフィールド一覧を返す。
func columns(table Table) ([]string, error) {
	cols, ok := Schema[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

// validateFields はレコードの全キーがテーブルのフィールドであることを検証する。
func validateFields(table Table, rec Record) error {
	cols, err := columns(table)
	if err != nil {
		return err
	}
	for key := range rec {
		if !contains(cols, key) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, table, key)
		}
	}
	return nil
}

// sortedKeys はレコードのキーを辞書順で返す。SQL生成を決定的にするために使う。
func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
