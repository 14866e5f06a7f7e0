package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresStore はPostgreSQLを使用したストレージ契約の実装（リモートストア）。
// テーブルとカラムはマイグレーションで作成され、カラム名はSchemaの正規フィールド名と一致する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert はレコードを追加する。IDが空の場合はUUIDを割り当てる。
func (s *PostgresStore) Insert(ctx context.Context, table Table, rec Record) (Record, error) {
	if err := validateFields(table, rec); err != nil {
		return nil, err
	}
	cols, _ := columns(table)

	rec = clone(rec)
	if String(rec, FieldID) == "" {
		rec[FieldID] = uuid.New().String()
	}

	keys := sortedKeys(rec)
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = sqlValue(rec[k])
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		pq.QuoteIdentifier(string(table)),
		quoteIdentifiers(keys),
		strings.Join(placeholders, ", "),
		quoteIdentifiers(cols),
	)

	out, err := scanRecord(s.db.QueryRowContext(ctx, query, args...).Scan, cols)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%sへの追加に失敗しました: %w", table, ErrConflict)
		}
		return nil, unavailable("insert", table, err)
	}
	return out, nil
}

// SelectAll はテーブルの全レコードを返す。
func (s *PostgresStore) SelectAll(ctx context.Context, table Table) ([]Record, error) {
	return s.SelectWhere(ctx, table, nil)
}

// SelectByID は指定IDのレコードを返す。見つからない場合はErrNotFoundを返す。
func (s *PostgresStore) SelectByID(ctx context.Context, table Table, id string) (Record, error) {
	cols, err := columns(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`,
		quoteIdentifiers(cols), pq.QuoteIdentifier(string(table)))

	out, err := scanRecord(s.db.QueryRowContext(ctx, query, id).Scan, cols)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("select", table, err)
	}
	return out, nil
}

// SelectWhere は全フィールドが等しいレコードを返す。
func (s *PostgresStore) SelectWhere(ctx context.Context, table Table, predicate Record) ([]Record, error) {
	if err := validateFields(table, predicate); err != nil {
		return nil, err
	}
	cols, _ := columns(table)

	where, args := buildConditions(predicate, 1)
	query := fmt.Sprintf(`SELECT %s FROM %s`, quoteIdentifiers(cols), pq.QuoteIdentifier(string(table)))
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("select", table, err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan, cols)
		if err != nil {
			return nil, unavailable("scan", table, err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("select", table, err)
	}
	return results, nil
}

// Update は指定フィールドのみを上書きする。
func (s *PostgresStore) Update(ctx context.Context, table Table, id string, partial Record) (Record, error) {
	return s.UpdateIf(ctx, table, id, nil, partial)
}

// UpdateIf はexpectが現在値と一致する場合のみ1文のUPDATEで更新する。
// 一致しなかった場合はレコードの存在を確認し、ErrNotFoundかErrConflictを返す。
func (s *PostgresStore) UpdateIf(ctx context.Context, table Table, id string, expect Record, partial Record) (Record, error) {
	if err := validateFields(table, partial); err != nil {
		return nil, err
	}
	if err := validateFields(table, expect); err != nil {
		return nil, err
	}
	cols, _ := columns(table)

	partial = clone(partial)
	delete(partial, FieldID)
	if len(partial) == 0 && len(expect) == 0 {
		return s.SelectByID(ctx, table, id)
	}

	args := []any{id}
	var sets []string
	for _, k := range sortedKeys(partial) {
		args = append(args, sqlValue(partial[k]))
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args)))
	}
	if len(sets) == 0 {
		// 条件確認のみの場合も1文で評価するためidを自己代入する
		sets = append(sets, "id = id")
	}

	where := "id = $1"
	cond, condArgs := buildConditions(expect, len(args)+1)
	if cond != "" {
		where += " AND " + cond
		args = append(args, condArgs...)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s RETURNING %s`,
		pq.QuoteIdentifier(string(table)),
		strings.Join(sets, ", "),
		where,
		quoteIdentifiers(cols),
	)

	out, err := scanRecord(s.db.QueryRowContext(ctx, query, args...).Scan, cols)
	if err == sql.ErrNoRows {
		if _, err := s.SelectByID(ctx, table, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%sの条件付き更新に失敗しました: %w", table, ErrConflict)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%sの更新に失敗しました: %w", table, ErrConflict)
	}
	if err != nil {
		return nil, unavailable("update", table, err)
	}
	return out, nil
}

// Delete は指定IDのレコードを削除する。
func (s *PostgresStore) Delete(ctx context.Context, table Table, id string) (bool, error) {
	if _, err := columns(table); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(string(table))),
		id,
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

// Ping はデータベースへの疎通を確認する。
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// buildConditions はレコードから "col = $n AND ..." 形式の条件式を生成する。
func buildConditions(rec Record, start int) (string, []any) {
	if len(rec) == 0 {
		return "", nil
	}
	var conds []string
	var args []any
	for i, k := range sortedKeys(rec) {
		conds = append(conds, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), start+i))
		args = append(args, sqlValue(rec[k]))
	}
	return strings.Join(conds, " AND "), args
}

// scanRecord は1行をカラム名をキーとするRecordに読み取る。
func scanRecord(scan func(dest ...any) error, cols []string) (Record, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := scan(ptrs...); err != nil {
		return nil, err
	}

	rec := make(Record, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			rec[col] = string(b)
			continue
		}
		rec[col] = values[i]
	}
	return rec, nil
}

func quoteIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// unavailable はバックエンド障害をErrUnavailableでラップする。元のエラーも保持する。
func unavailable(op string, table Table, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, table, ErrUnavailable, err)
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
