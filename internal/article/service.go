// Package article は記事の永続化とライフサイクル操作を提供する。
// すべての書き込みは永続化の前にlifecycle.Engineで認可される。
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/newsdesk/internal/lifecycle"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
)

// TransitionRecorder は成功した状態遷移を記録する。metrics.Collectorが実装する。
type TransitionRecorder interface {
	RecordTransition(from, to string)
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTransitionRecorder は状態遷移の記録先を設定する。
func WithTransitionRecorder(r TransitionRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service は記事のビジネスロジックを提供する。
type Service struct {
	store     repository.Store
	engine    *lifecycle.Engine
	sanitizer security.ContentSanitizer
	recorder  TransitionRecorder
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(store repository.Store, engine *lifecycle.Engine, sanitizer security.ContentSanitizer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		engine:    engine,
		sanitizer: sanitizer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は記事を下書き状態で作成する。作成者は呼び出し元になる。
func (s *Service) Create(ctx context.Context, caller model.Caller, draft model.ArticleDraft) (*model.Article, error) {
	if err := s.engine.CheckCreate(caller); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(draft.Title)
	sectionName := strings.TrimSpace(draft.SectionName)
	body := s.sanitizer.Sanitize(draft.Body)
	if err := validateRequired(title, body, sectionName); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := s.store.Insert(ctx, repository.TableArticles, repository.Record{
		"title":               title,
		"subtitle":            strings.TrimSpace(draft.Subtitle),
		"body":                body,
		"section_name":        sectionName,
		"image_ref":           draft.ImageRef,
		"author_id":           caller.ID,
		"author_display_name": caller.DisplayName,
		"status":              model.StatusDraft,
		"created_at":          now,
		"updated_at":          now,
	})
	if err != nil {
		return nil, storeError("failed to create article", err)
	}

	article := fromRecord(rec)
	slog.Info("article created",
		slog.String("article_id", article.ID),
		slog.String("author_id", article.AuthorID),
	)
	return article, nil
}

// Get は記事を取得する。存在しない場合はNotFoundを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Article, error) {
	rec, err := s.store.SelectByID(ctx, repository.TableArticles, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewArticleNotFoundError(id)
	}
	if err != nil {
		return nil, storeError("failed to get article", err)
	}
	return fromRecord(rec), nil
}

// ListAll は全記事を作成日時の降順で返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Article, error) {
	recs, err := s.store.SelectAll(ctx, repository.TableArticles)
	if err != nil {
		return nil, storeError("failed to list articles", err)
	}
	return fromRecords(recs), nil
}

// ListByAuthor は指定した作成者の記事を作成日時の降順で返す。
func (s *Service) ListByAuthor(ctx context.Context, authorID string) ([]*model.Article, error) {
	recs, err := s.store.SelectWhere(ctx, repository.TableArticles, repository.Record{"author_id": authorID})
	if err != nil {
		return nil, storeError("failed to list articles by author", err)
	}
	return fromRecords(recs), nil
}

// ListPublished は公開中の記事を作成日時の降順で返す。
func (s *Service) ListPublished(ctx context.Context) ([]*model.Article, error) {
	recs, err := s.store.SelectWhere(ctx, repository.TableArticles, repository.Record{"status": model.StatusPublished})
	if err != nil {
		return nil, storeError("failed to list published articles", err)
	}
	return fromRecords(recs), nil
}

// Update は記事を部分更新する。
// Statusを含む場合は状態遷移として認可し、本文系フィールドも含む場合は遷移前の状態で編集権限も確認する。
// Statusを含まない場合（空のパッチを含む）は編集権限を確認する。UpdatedAtは常に更新される。
func (s *Service) Update(ctx context.Context, id string, patch model.ArticlePatch, caller model.Caller) (*model.Article, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		if err := s.engine.CheckTransition(caller, current, *patch.Status); err != nil {
			return nil, err
		}
		if patch.HasContentChanges() {
			if err := s.engine.CheckEdit(caller, current); err != nil {
				return nil, err
			}
		}
	} else if err := s.engine.CheckEdit(caller, current); err != nil {
		return nil, err
	}

	partial, err := s.contentPartial(patch)
	if err != nil {
		return nil, err
	}
	partial["updated_at"] = s.now()

	if patch.Status == nil {
		// 編集可否を判定した状態から変わっていない場合のみ書き込む
		rec, err := s.store.UpdateIf(ctx, repository.TableArticles, id,
			repository.Record{"status": current.Status}, partial)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewArticleNotFoundError(id)
		case errors.Is(err, repository.ErrConflict):
			return nil, s.editConflict(ctx, id, current.Status, caller)
		case err != nil:
			return nil, storeError("failed to update article", err)
		}
		return fromRecord(rec), nil
	}

	to := *patch.Status
	partial["status"] = to

	// 判定に使った状態から変わっていない場合のみ書き込む
	rec, err := s.store.UpdateIf(ctx, repository.TableArticles, id,
		repository.Record{"status": current.Status}, partial)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, model.NewArticleNotFoundError(id)
	case errors.Is(err, repository.ErrConflict):
		return nil, model.NewInvalidTransitionError(current.Status, to)
	case err != nil:
		return nil, storeError("failed to transition article", err)
	}

	if s.recorder != nil {
		s.recorder.RecordTransition(string(current.Status), string(to))
	}
	slog.Info("article status changed",
		slog.String("article_id", id),
		slog.String("from", string(current.Status)),
		slog.String("to", string(to)),
		slog.String("caller_id", caller.ID),
	)
	return fromRecord(rec), nil
}

// editConflict は内容編集中に状態が変わった場合のエラーを返す。
// 変更後の状態で編集できなければその判定結果を、編集できても状態遷移エラーを返す。
func (s *Service) editConflict(ctx context.Context, id string, judged model.ArticleStatus, caller model.Caller) error {
	latest, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.CheckEdit(caller, latest); err != nil {
		return err
	}
	return model.NewInvalidTransitionError(judged, latest.Status)
}

// Transition は記事の状態のみを変更する。
func (s *Service) Transition(ctx context.Context, id string, to model.ArticleStatus, caller model.Caller) (*model.Article, error) {
	return s.Update(ctx, id, model.ArticlePatch{Status: &to}, caller)
}

// Delete は記事を物理削除する。編集者のみ実行できる。
func (s *Service) Delete(ctx context.Context, id string, caller model.Caller) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.CheckDelete(caller, current); err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, repository.TableArticles, id)
	if err != nil {
		return storeError("failed to delete article", err)
	}
	if !deleted {
		return model.NewArticleNotFoundError(id)
	}

	slog.Info("article deleted",
		slog.String("article_id", id),
		slog.String("caller_id", caller.ID),
	)
	return nil
}

// AllowedTransitions は呼び出し元が記事に対して実行できる遷移先を返す。
func (s *Service) AllowedTransitions(caller model.Caller, article *model.Article) []model.ArticleStatus {
	return s.engine.AllowedTransitions(caller, article)
}

// contentPartial はパッチの本文系フィールドを保存用のレコードに変換する。
// 必須項目を空にする変更はValidationFailedになる。
func (s *Service) contentPartial(patch model.ArticlePatch) (repository.Record, error) {
	partial := repository.Record{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, model.NewValidationError("title", "タイトルは必須です")
		}
		partial["title"] = title
	}
	if patch.Subtitle != nil {
		partial["subtitle"] = strings.TrimSpace(*patch.Subtitle)
	}
	if patch.Body != nil {
		body := s.sanitizer.Sanitize(*patch.Body)
		if strings.TrimSpace(body) == "" {
			return nil, model.NewValidationError("body", "本文は必須です")
		}
		partial["body"] = body
	}
	if patch.SectionName != nil {
		sectionName := strings.TrimSpace(*patch.SectionName)
		if sectionName == "" {
			return nil, model.NewValidationError("section", "セクションは必須です")
		}
		partial["section_name"] = sectionName
	}
	if patch.ImageRef != nil {
		partial["image_ref"] = *patch.ImageRef
	}
	return partial, nil
}

func validateRequired(title, body, sectionName string) error {
	switch {
	case title == "":
		return model.NewValidationError("title", "タイトルは必須です")
	case strings.TrimSpace(body) == "":
		return model.NewValidationError("body", "本文は必須です")
	case sectionName == "":
		return model.NewValidationError("section", "セクションは必須です")
	}
	return nil
}

func fromRecord(rec repository.Record) *model.Article {
	return &model.Article{
		ID:                repository.String(rec, repository.FieldID),
		Title:             repository.String(rec, "title"),
		Subtitle:          repository.String(rec, "subtitle"),
		Body:              repository.String(rec, "body"),
		SectionName:       repository.String(rec, "section_name"),
		ImageRef:          repository.String(rec, "image_ref"),
		AuthorID:          repository.String(rec, "author_id"),
		AuthorDisplayName: repository.String(rec, "author_display_name"),
		Status:            model.ArticleStatus(repository.String(rec, "status")),
		CreatedAt:         repository.Time(rec, "created_at"),
		UpdatedAt:         repository.Time(rec, "updated_at"),
	}
}

// fromRecords はレコードを記事に変換し、作成日時の降順に並べる。
func fromRecords(recs []repository.Record) []*model.Article {
	articles := make([]*model.Article, 0, len(recs))
	for _, rec := range recs {
		articles = append(articles, fromRecord(rec))
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})
	return articles
}

// storeError はバックエンド障害をStoreUnavailableに変換する。
func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return model.NewStoreUnavailableError(err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
