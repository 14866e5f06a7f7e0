package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/query"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	Create(ctx context.Context, caller model.Caller, draft model.ArticleDraft) (*model.Article, error)
	Get(ctx context.Context, id string) (*model.Article, error)
	ListAll(ctx context.Context) ([]*model.Article, error)
	ListByAuthor(ctx context.Context, authorID string) ([]*model.Article, error)
	ListPublished(ctx context.Context) ([]*model.Article, error)
	Update(ctx context.Context, id string, patch model.ArticlePatch, caller model.Caller) (*model.Article, error)
	Transition(ctx context.Context, id string, to model.ArticleStatus, caller model.Caller) (*model.Article, error)
	Delete(ctx context.Context, id string, caller model.Caller) error
	AllowedTransitions(caller model.Caller, article *model.Article) []model.ArticleStatus
}

// ArticleHandler は編集部向けの記事管理HTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

type createArticleRequest struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Body     string `json:"body"`
	Section  string `json:"section"`
	ImageRef string `json:"image_ref"`
}

// updateArticleRequest は部分更新のリクエスト。省略したフィールドは変更しない。
type updateArticleRequest struct {
	Title    *string `json:"title"`
	Subtitle *string `json:"subtitle"`
	Body     *string `json:"body"`
	Section  *string `json:"section"`
	ImageRef *string `json:"image_ref"`
	Status   *string `json:"status"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

// articleResponse は記事のAPIレスポンス。
type articleResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Subtitle           string    `json:"subtitle"`
	Body               string    `json:"body"`
	Section            string    `json:"section"`
	ImageRef           string    `json:"image_ref,omitempty"`
	AuthorID           string    `json:"author_id"`
	AuthorDisplayName  string    `json:"author_display_name"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	AllowedTransitions []string  `json:"allowed_transitions,omitempty"`
}

type articleListResponse struct {
	Articles []articleResponse `json:"articles"`
}

func toArticleResponse(a *model.Article, allowed []model.ArticleStatus) articleResponse {
	resp := articleResponse{
		ID:                a.ID,
		Title:             a.Title,
		Subtitle:          a.Subtitle,
		Body:              a.Body,
		Section:           a.SectionName,
		ImageRef:          a.ImageRef,
		AuthorID:          a.AuthorID,
		AuthorDisplayName: a.AuthorDisplayName,
		Status:            string(a.Status),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	for _, s := range allowed {
		resp.AllowedTransitions = append(resp.AllowedTransitions, string(s))
	}
	return resp
}

func (h *ArticleHandler) respond(w http.ResponseWriter, status int, caller model.Caller, a *model.Article) {
	writeJSON(w, status, toArticleResponse(a, h.service.AllowedTransitions(caller, a)))
}

// ListArticles はダッシュボードの記事一覧を返す。
// 編集者は全記事、reporterは自分の記事のみ。section と q で絞り込む。
// GET /api/articles?section=xxx&q=yyy
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var (
		articles []*model.Article
		err      error
	)
	if caller.IsEditor() {
		articles, err = h.service.ListAll(r.Context())
	} else {
		articles, err = h.service.ListByAuthor(r.Context(), caller.ID)
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	filtered := query.Apply(caller, articles, query.Filter{
		Section: r.URL.Query().Get("section"),
		Search:  r.URL.Query().Get("q"),
	})

	resp := articleListResponse{Articles: make([]articleResponse, 0, len(filtered))}
	for _, a := range filtered {
		resp.Articles = append(resp.Articles, toArticleResponse(a, h.service.AllowedTransitions(caller, a)))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateArticle は記事を下書きとして作成する。
// POST /api/articles
func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req createArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Create(r.Context(), caller, model.ArticleDraft{
		Title:       req.Title,
		Subtitle:    req.Subtitle,
		Body:        req.Body,
		SectionName: req.Section,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, caller, a)
}

// GetArticle は記事詳細を返す。reporterが他人の記事を指定した場合は存在しないものとして扱う。
// GET /api/articles/{id}
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if len(query.VisibleTo(caller, []*model.Article{a})) == 0 {
		middleware.WriteError(w, r, model.NewArticleNotFoundError(id))
		return
	}

	h.respond(w, http.StatusOK, caller, a)
}

// UpdateArticle は記事を部分更新する。statusを含む場合は状態遷移も行う。
// PATCH /api/articles/{id}
func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req updateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := model.ArticlePatch{
		Title:       req.Title,
		Subtitle:    req.Subtitle,
		Body:        req.Body,
		SectionName: req.Section,
		ImageRef:    req.ImageRef,
	}
	if req.Status != nil {
		status := model.ArticleStatus(*req.Status)
		patch.Status = &status
	}

	a, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch, caller)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, caller, a)
}

// TransitionArticle は記事の状態のみを変更する。
// POST /api/articles/{id}/status
func (h *ArticleHandler) TransitionArticle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), model.ArticleStatus(req.Status), caller)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, caller, a)
}

// DeleteArticle は記事を削除する。
// DELETE /api/articles/{id}
func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), caller); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
