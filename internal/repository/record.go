package repository

import (
	"encoding/json"
	"reflect"
	"strconv"
	"time"
)

// 以下のアクセサは両ドライバのネイティブ表現を吸収する。
// PostgreSQLはint64/time.Time/boolを、ローカルストアはJSON由来のjson.Number/文字列を返す。

// String はフィールドを文字列として返す。存在しない場合やNULLは空文字列。
func String(rec Record, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		if s, ok := normalize(v).(string); ok {
			return s
		}
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Int はフィールドを整数として返す。変換できない場合は0。
func Int(rec Record, key string) int {
	switch v := rec[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int(f)
		}
		return int(i)
	case string:
		i, _ := strconv.Atoi(v)
		return i
	case []byte:
		i, _ := strconv.Atoi(string(v))
		return i
	default:
		return 0
	}
}

// Bool はフィールドを真偽値として返す。
func Bool(rec Record, key string) bool {
	switch v := rec[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Time はフィールドを時刻として返す。変換できない場合はゼロ値。
func Time(rec Record, key string) time.Time {
	switch v := rec[key].(type) {
	case time.Time:
		return v
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sqlValue はPostgreSQLへ渡す値を返す。
// サーバー側の丸めに任せず、ローカルストアと同じくマイクロ秒未満を切り捨てる。
func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Truncate(time.Microsecond)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Truncate(time.Microsecond)
	}
	return v
}

// normalize は比較と保存のために値を正規化する。
// 時刻はPostgreSQLのtimestamptzと同じマイクロ秒精度に切り捨て、UTCのRFC3339Nano文字列にする。
// 整数型はint64に揃える。
func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []byte:
		return string(x)
	default:
		// string派生型（model.ArticleStatus等）は素の文字列に揃える
		if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
			return rv.String()
		}
		return v
	}
}

// equalValues は正規化後の値が等しいかどうかを返す。
func equalValues(a, b any) bool {
	return normalize(a) == normalize(b)
}

// clone はレコードの浅いコピーを返す。
func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
