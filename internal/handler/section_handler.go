package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
)

// SectionServiceInterface はセクションハンドラーが必要とするサービスインターフェース。
type SectionServiceInterface interface {
	ListSections(ctx context.Context) ([]model.Section, error)
	ListActiveSections(ctx context.Context) ([]model.Section, error)
	CreateSection(ctx context.Context, caller model.Caller, fields model.SectionFields) (*model.Section, error)
	UpdateSection(ctx context.Context, caller model.Caller, id string, patch model.SectionPatch) (*model.Section, error)
	DeleteSection(ctx context.Context, caller model.Caller, id string) error
}

// SectionHandler はセクション管理のHTTPハンドラー。
type SectionHandler struct {
	service SectionServiceInterface
}

// NewSectionHandler はSectionHandlerを生成する。
func NewSectionHandler(service SectionServiceInterface) *SectionHandler {
	return &SectionHandler{service: service}
}

type createSectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
	Active      *bool  `json:"active"`
}

type updateSectionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
	Active      *bool   `json:"active"`
}

type sectionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Active      bool   `json:"active"`
}

type sectionListResponse struct {
	Sections []sectionResponse `json:"sections"`
}

func toSectionResponse(s model.Section) sectionResponse {
	return sectionResponse{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Order:       s.Order,
		Active:      s.Active,
	}
}

func writeSections(w http.ResponseWriter, sections []model.Section) {
	resp := sectionListResponse{Sections: make([]sectionResponse, 0, len(sections))}
	for _, s := range sections {
		resp.Sections = append(resp.Sections, toSectionResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSections は無効なものを含む全セクションを返す。
// GET /api/sections
func (h *SectionHandler) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.service.ListSections(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeSections(w, sections)
}

// CreateSection はセクションを作成する。activeを省略した場合は有効として作成する。
// POST /api/sections
func (h *SectionHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req createSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sec, err := h.service.CreateSection(r.Context(), caller, model.SectionFields{
		Name:        req.Name,
		Description: req.Description,
		Order:       req.Order,
		Active:      active,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSectionResponse(*sec))
}

// UpdateSection はセクションを部分更新する。
// PATCH /api/sections/{id}
func (h *SectionHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req updateSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sec, err := h.service.UpdateSection(r.Context(), caller, chi.URLParam(r, "id"), model.SectionPatch{
		Name:        req.Name,
		Description: req.Description,
		Order:       req.Order,
		Active:      req.Active,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSectionResponse(*sec))
}

// DeleteSection はセクションを削除する。
// DELETE /api/sections/{id}
func (h *SectionHandler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSection(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
