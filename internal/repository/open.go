package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newsdesk/internal/database"
)

// OpenOptions はストレージの選択方法を指定する。
type OpenOptions struct {
	// DatabaseURL が空の場合はローカルストアを使用する。
	DatabaseURL string
	// LocalPath はローカルストアのSQLiteファイルパス。空の場合はインメモリ。
	LocalPath string
	// Fallback がtrueの場合、リモートストアに接続できなければローカルストアに切り替える。
	Fallback    bool
	PingTimeout time.Duration
	Logger      *slog.Logger
}

// Open はDATABASE_URLのスキームに従ってストレージ契約の実装を選択して開く。
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.DatabaseURL == "" {
		logger.Info("using local store", slog.String("path", opts.LocalPath))
		return OpenLocalStore(opts.LocalPath)
	}

	target, err := database.ParseURL(opts.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if target.Backend == database.BackendSQLite {
		logger.Info("using local store", slog.String("path", target.DSN))
		return OpenLocalStore(target.DSN)
	}

	store, err := openPostgres(ctx, target.DSN, opts.PingTimeout)
	if err == nil {
		logger.Info("using remote store", slog.String("backend", string(target.Backend)))
		return store, nil
	}
	if !opts.Fallback {
		return nil, err
	}

	logger.Warn("remote store unreachable, falling back to local store",
		slog.String("error", err.Error()),
		slog.String("path", opts.LocalPath),
	)
	return OpenLocalStore(opts.LocalPath)
}

func openPostgres(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	db, err := database.Open(dsn)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("remote store: %w: %w", ErrUnavailable, err)
	}
	return NewPostgresStore(db), nil
}
