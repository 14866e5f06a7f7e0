package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// localSchema はローカルストアのキーバリューテーブル。
// (tbl, id) をキーに、レコード全体をJSONドキュメントとして保持する。
const localSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	tbl TEXT NOT NULL,
	id  TEXT NOT NULL,
	doc TEXT NOT NULL,
	UNIQUE (tbl, id)
)`

// LocalStore はSQLiteファイルをキーバリューストアとして使うストレージ契約の実装（ローカルフォールバック）。
// 接続は1本に制限し、全操作を直列化する。
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore は指定パスのSQLiteファイルを開き、LocalStoreを生成する。
// pathが空または":memory:"の場合はインメモリストアになる。
func OpenLocalStore(path string) (*LocalStore, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// インメモリDBは接続ごとに別DBになるため、1接続に固定する
	db.SetMaxOpenConns(1)

	store, err := NewLocalStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewLocalStore は既存の接続からLocalStoreを生成し、スキーマを初期化する。
func NewLocalStore(db *sql.DB) (*LocalStore, error) {
	if _, err := db.Exec(localSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize local store schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Insert はレコードを追加する。IDが空の場合はUUIDを割り当てる。
func (s *LocalStore) Insert(ctx context.Context, table Table, rec Record) (Record, error) {
	if err := validateFields(table, rec); err != nil {
		return nil, err
	}

	rec = clone(rec)
	if String(rec, FieldID) == "" {
		rec[FieldID] = uuid.New().String()
	}
	id := String(rec, FieldID)

	doc, err := encodeDoc(rec)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", table, err)
	}
	defer tx.Rollback()

	if err := s.checkUnique(ctx, tx, table, id, rec); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (tbl, id, doc) VALUES (?, ?, ?)`,
		string(table), id, doc,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%sへの追加に失敗しました: %w", table, ErrConflict)
		}
		return nil, unavailable("insert", table, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", table, err)
	}

	return decodeDoc(doc)
}

// SelectAll はテーブルの全レコードを追加順に返す。
func (s *LocalStore) SelectAll(ctx context.Context, table Table) ([]Record, error) {
	if _, err := columns(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM records WHERE tbl = ? ORDER BY seq ASC`,
		string(table),
	)
	if err != nil {
		return nil, unavailable("select", table, err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, unavailable("scan", table, err)
		}
		rec, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("select", table, err)
	}
	return results, nil
}

// SelectByID は指定IDのレコードを返す。見つからない場合はErrNotFoundを返す。
func (s *LocalStore) SelectByID(ctx context.Context, table Table, id string) (Record, error) {
	if _, err := columns(table); err != nil {
		return nil, err
	}
	return s.selectDoc(ctx, s.db, table, id)
}

// SelectWhere は全フィールドが等しいレコードを返す。
// キーバリューストアのため、テーブル全件を読み出してから比較する。
func (s *LocalStore) SelectWhere(ctx context.Context, table Table, predicate Record) ([]Record, error) {
	if err := validateFields(table, predicate); err != nil {
		return nil, err
	}

	all, err := s.SelectAll(ctx, table)
	if err != nil {
		return nil, err
	}

	var results []Record
	for _, rec := range all {
		if matches(rec, predicate) {
			results = append(results, rec)
		}
	}
	return results, nil
}

// Update は指定フィールドのみを上書きする。
func (s *LocalStore) Update(ctx context.Context, table Table, id string, partial Record) (Record, error) {
	return s.UpdateIf(ctx, table, id, nil, partial)
}

// UpdateIf はトランザクション内で現在値を読み出し、expectと一致する場合のみ書き込む。
func (s *LocalStore) UpdateIf(ctx context.Context, table Table, id string, expect Record, partial Record) (Record, error) {
	if err := validateFields(table, partial); err != nil {
		return nil, err
	}
	if err := validateFields(table, expect); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", table, err)
	}
	defer tx.Rollback()

	current, err := s.selectDoc(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}
	if !matches(current, expect) {
		return nil, fmt.Errorf("%sの条件付き更新に失敗しました: %w", table, ErrConflict)
	}

	if err := s.checkUnique(ctx, tx, table, id, partial); err != nil {
		return nil, err
	}

	for k, v := range partial {
		if k == FieldID {
			continue
		}
		current[k] = v
	}

	doc, err := encodeDoc(current)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET doc = ? WHERE tbl = ? AND id = ?`,
		doc, string(table), id,
	); err != nil {
		return nil, unavailable("update", table, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", table, err)
	}

	return decodeDoc(doc)
}

// Delete は指定IDのレコードを削除する。
func (s *LocalStore) Delete(ctx context.Context, table Table, id string) (bool, error) {
	if _, err := columns(table); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE tbl = ? AND id = ?`,
		string(table), id,
	)
	if err != nil {
		return false, unavailable("delete", table, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("delete", table, err)
	}
	return rowsAffected > 0, nil
}

// Ping はSQLiteファイルへの疎通を確認する。
func (s *LocalStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close はSQLiteファイルを閉じる。
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *LocalStore) selectDoc(ctx context.Context, q queryer, table Table, id string) (Record, error) {
	var doc string
	err := q.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE tbl = ? AND id = ?`,
		string(table), id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("select", table, err)
	}
	return decodeDoc(doc)
}

// checkUnique はrecに含まれる一意フィールドの値が、id以外のレコードで使われていないかを検査する。
// 呼び出し側のトランザクション内で実行し、検査と書き込みの間に割り込まれないようにする。
func (s *LocalStore) checkUnique(ctx context.Context, q queryer, table Table, id string, rec Record) error {
	for _, field := range UniqueFields[table] {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		var other string
		err := q.QueryRowContext(ctx,
			`SELECT id FROM records WHERE tbl = ? AND id <> ? AND json_extract(doc, ?) = ? LIMIT 1`,
			string(table), id, "$."+field, normalize(v),
		).Scan(&other)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return unavailable("select", table, err)
		}
		return fmt.Errorf("%s.%sの値が重複しています: %w", table, field, ErrConflict)
	}
	return nil
}

// matches はrecの各フィールドがpredicateの値と等しいかを返す。
func matches(rec, predicate Record) bool {
	for k, want := range predicate {
		if !equalValues(rec[k], want) {
			return false
		}
	}
	return true
}

// encodeDoc は値を正規化してJSONドキュメントに変換する。
func encodeDoc(rec Record) (string, error) {
	normalized := make(map[string]any, len(rec))
	for k, v := range rec {
		normalized[k] = normalize(v)
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(b), nil
}

// decodeDoc はJSONドキュメントをRecordに戻す。数値はint64（整数の場合）に揃える。
func decodeDoc(doc string) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	rec := make(Record, len(raw))
	for k, v := range raw {
		rec[k] = normalize(v)
	}
	return rec, nil
}

// compile-time interface check
var _ Store = (*LocalStore)(nil)
