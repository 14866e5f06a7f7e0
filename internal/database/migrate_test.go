package database

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// setupTestDB はテスト用データベースを準備する。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	cleanupSQL := `
		DROP TABLE IF EXISTS articles CASCADE;
		DROP TABLE IF EXISTS sections CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	return db, dbURL
}

var expectedTables = []string{"users", "sessions", "sections", "articles"}

func TestRunMigrations_UpIsIdempotent(t *testing.T) {
	db, dbURL := setupTestDB(t)
	defer db.Close()

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("1回目のマイグレーション実行に失敗: %v", err)
	}
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("2回目のマイグレーション実行に失敗（冪等性の問題）: %v", err)
	}

	if got := countTables(t, db); got != len(expectedTables) {
		t.Errorf("Up後のテーブル数が不正: got %d, want %d", got, len(expectedTables))
	}
}

func TestMigrateDown_DropsAllTables(t *testing.T) {
	db, dbURL := setupTestDB(t)
	defer db.Close()

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if err := MigrateDown(dbURL); err != nil {
		t.Fatalf("ロールバックに失敗: %v", err)
	}

	if got := countTables(t, db); got != 0 {
		t.Errorf("Down後のテーブル数が不正: got %d, want 0", got)
	}
}

// TestArticlesTable はarticlesテーブルのカラム名がストレージ契約の正規フィールド名と一致することを検証する。
func TestArticlesTable(t *testing.T) {
	db, dbURL := setupTestDB(t)
	defer db.Close()

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	assertTableColumns(t, db, "articles", map[string]string{
		"id":                  "text",
		"title":               "text",
		"subtitle":            "text",
		"body":                "text",
		"section_name":        "character varying",
		"image_ref":           "text",
		"author_id":           "text",
		"author_display_name": "character varying",
		"status":              "character varying",
		"created_at":          "timestamp with time zone",
		"updated_at":          "timestamp with time zone",
	})
	assertTableColumns(t, db, "sections", map[string]string{
		"id":          "text",
		"name":        "character varying",
		"description": "text",
		"sort_order":  "integer",
		"active":      "boolean",
	})
}

// TestUsersEmailUnique はメールアドレスの一意制約を検証する。
func TestUsersEmailUnique(t *testing.T) {
	db, dbURL := setupTestDB(t)
	defer db.Close()

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	insert := `INSERT INTO users (id, email, display_name, role, password_hash) VALUES ($1, 'a@example.com', 'a', 'reporter', 'x')`
	if _, err := db.Exec(insert, "u1"); err != nil {
		t.Fatalf("1件目の挿入に失敗: %v", err)
	}
	if _, err := db.Exec(insert, "u2"); err == nil {
		t.Error("同じメールアドレスの2件目の挿入が成功してしまった")
	}
}

func countTables(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ANY($1)",
		"{users,sessions,sections,articles}",
	).Scan(&count)
	if err != nil {
		t.Fatalf("テーブルカウント取得に失敗: %v", err)
	}
	return count
}

// assertTableColumns はテーブルのカラム名とデータ型を検証する。
func assertTableColumns(t *testing.T, db *sql.DB, table string, expected map[string]string) {
	t.Helper()

	rows, err := db.Query(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1",
		table,
	)
	if err != nil {
		t.Fatalf("%s テーブルのカラム情報取得に失敗: %v", table, err)
	}
	defer rows.Close()

	actual := make(map[string]string)
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			t.Fatalf("カラム情報のスキャンに失敗: %v", err)
		}
		actual[name] = dtype
	}

	for col, expectedType := range expected {
		actualType, ok := actual[col]
		if !ok {
			t.Errorf("%s.%s カラムが存在しません", table, col)
			continue
		}
		if actualType != expectedType {
			t.Errorf("%s.%s のデータ型が不正: got %q, want %q", table, col, actualType, expectedType)
		}
	}
	if len(actual) != len(expected) {
		t.Errorf("%s のカラム数が不正: got %d, want %d", table, len(actual), len(expected))
	}
}
