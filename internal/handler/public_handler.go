package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/query"
	"github.com/hitoshi/newsdesk/internal/syndication"
)

// HealthChecker はストレージの疎通確認を行う。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PublicHandler は認証不要の公開ページ向けHTTPハンドラー。
type PublicHandler struct {
	articles ArticleServiceInterface
	sections SectionServiceInterface
	feed     *syndication.Writer
	health   HealthChecker
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(articles ArticleServiceInterface, sections SectionServiceInterface, feed *syndication.Writer, health HealthChecker) *PublicHandler {
	return &PublicHandler{articles: articles, sections: sections, feed: feed, health: health}
}

// publicArticleResponse は公開ページ向けの記事レスポンス。作成者IDは含めない。
type publicArticleResponse struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Subtitle          string `json:"subtitle"`
	Body              string `json:"body"`
	Section           string `json:"section"`
	ImageRef          string `json:"image_ref,omitempty"`
	AuthorDisplayName string `json:"author_display_name"`
	PublishedAt       string `json:"published_at"`
}

type publicArticleListResponse struct {
	Articles []publicArticleResponse `json:"articles"`
}

func toPublicArticleResponse(a *model.Article) publicArticleResponse {
	return publicArticleResponse{
		ID:                a.ID,
		Title:             a.Title,
		Subtitle:          a.Subtitle,
		Body:              a.Body,
		Section:           a.SectionName,
		ImageRef:          a.ImageRef,
		AuthorDisplayName: a.AuthorDisplayName,
		PublishedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Health はストレージへの疎通を確認する。
// GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListSections は有効なセクションを表示順で返す。
// GET /api/public/sections
func (h *PublicHandler) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.sections.ListActiveSections(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeSections(w, sections)
}

// ListArticles は公開中の記事を新しい順に返す。
// GET /api/public/articles?section=xxx
func (h *PublicHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	published, err := h.articles.ListPublished(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	listing := query.PublicListing(published, r.URL.Query().Get("section"))
	resp := publicArticleListResponse{Articles: make([]publicArticleResponse, 0, len(listing))}
	for _, a := range listing {
		resp.Articles = append(resp.Articles, toPublicArticleResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetArticle は公開中の記事を返す。公開中でなければ404。
// GET /api/public/articles/{id}
func (h *PublicHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.articles.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if a.Status != model.StatusPublished {
		middleware.WriteError(w, r, model.NewArticleNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toPublicArticleResponse(a))
}

// Feed は公開中の記事のRSS 2.0フィードを返す。
// GET /feed.xml?section=xxx
func (h *PublicHandler) Feed(w http.ResponseWriter, r *http.Request) {
	published, err := h.articles.ListPublished(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.feed.Write(&buf, query.PublicListing(published, r.URL.Query().Get("section"))); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", syndication.ContentType)
	w.Write(buf.Bytes())
}
