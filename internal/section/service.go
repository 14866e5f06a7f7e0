// Package section はセクション（記事カテゴリ）のカタログを管理する。
package section

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Authorizer はセクション管理の権限判定。lifecycle.Engineが実装する。
type Authorizer interface {
	CheckManageSections(caller model.Caller) error
}

// Service はセクションカタログのビジネスロジックを提供する。
// 参照は誰でも可能で、作成・更新・削除は編集者のみ。
type Service struct {
	store repository.Store
	auth  Authorizer
}

// NewService はServiceを生成する。
func NewService(store repository.Store, auth Authorizer) *Service {
	return &Service{store: store, auth: auth}
}

// ListSections は全セクションを表示順（Order昇順、同順位は名前、ID順）で返す。
func (s *Service) ListSections(ctx context.Context) ([]model.Section, error) {
	recs, err := s.store.SelectAll(ctx, repository.TableSections)
	if err != nil {
		return nil, storeError("failed to list sections", err)
	}

	sections := make([]model.Section, 0, len(recs))
	for _, rec := range recs {
		sections = append(sections, fromRecord(rec))
	}
	sortSections(sections)
	return sections, nil
}

// ListActiveSections は有効なセクションのみを表示順で返す。公開ページで使用する。
func (s *Service) ListActiveSections(ctx context.Context) ([]model.Section, error) {
	all, err := s.ListSections(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]model.Section, 0, len(all))
	for _, sec := range all {
		if sec.Active {
			active = append(active, sec)
		}
	}
	return active, nil
}

// CreateSection はセクションを作成する。Order未指定の場合は既存件数+1を割り当てる。
// 名前の重複は許容する。
func (s *Service) CreateSection(ctx context.Context, caller model.Caller, fields model.SectionFields) (*model.Section, error) {
	if err := s.auth.CheckManageSections(caller); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return nil, model.NewValidationError("name", "セクション名は必須です")
	}

	var order int
	if fields.Order != nil {
		if *fields.Order <= 0 {
			return nil, model.NewValidationError("order", "表示順は1以上で指定してください")
		}
		order = *fields.Order
	} else {
		existing, err := s.store.SelectAll(ctx, repository.TableSections)
		if err != nil {
			return nil, storeError("failed to count sections", err)
		}
		order = len(existing) + 1
	}

	rec, err := s.store.Insert(ctx, repository.TableSections, repository.Record{
		"name":        name,
		"description": fields.Description,
		"sort_order":  order,
		"active":      fields.Active,
	})
	if err != nil {
		return nil, storeError("failed to create section", err)
	}

	sec := fromRecord(rec)
	slog.Info("section created",
		slog.String("section_id", sec.ID),
		slog.String("name", sec.Name),
		slog.String("caller_id", caller.ID),
	)
	return &sec, nil
}

// UpdateSection はセクションを部分更新する。
func (s *Service) UpdateSection(ctx context.Context, caller model.Caller, id string, patch model.SectionPatch) (*model.Section, error) {
	if err := s.auth.CheckManageSections(caller); err != nil {
		return nil, err
	}

	partial := repository.Record{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, model.NewValidationError("name", "セクション名は必須です")
		}
		partial["name"] = name
	}
	if patch.Description != nil {
		partial["description"] = *patch.Description
	}
	if patch.Order != nil {
		if *patch.Order <= 0 {
			return nil, model.NewValidationError("order", "表示順は1以上で指定してください")
		}
		partial["sort_order"] = *patch.Order
	}
	if patch.Active != nil {
		partial["active"] = *patch.Active
	}

	rec, err := s.store.Update(ctx, repository.TableSections, id, partial)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewSectionNotFoundError(id)
	}
	if err != nil {
		return nil, storeError("failed to update section", err)
	}

	sec := fromRecord(rec)
	return &sec, nil
}

// DeleteSection はセクションを削除する。記事のSectionNameはそのまま残る。
func (s *Service) DeleteSection(ctx context.Context, caller model.Caller, id string) error {
	if err := s.auth.CheckManageSections(caller); err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, repository.TableSections, id)
	if err != nil {
		return storeError("failed to delete section", err)
	}
	if !deleted {
		return model.NewSectionNotFoundError(id)
	}

	slog.Info("section deleted",
		slog.String("section_id", id),
		slog.String("caller_id", caller.ID),
	)
	return nil
}

// seedFile は既定セクション定義ファイルの形式。
type seedFile struct {
	Sections []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Order       int    `yaml:"order"`
		Active      bool   `yaml:"active"`
	} `yaml:"sections"`
}

// SeedDefaults はカタログが空の場合に既定のセクションを投入し、投入件数を返す。
// 1件でも存在する場合は何もしない。
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	existing, err := s.store.SelectAll(ctx, repository.TableSections)
	if err != nil {
		return 0, storeError("failed to list sections", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	var seed seedFile
	if err := yaml.Unmarshal(defaultsYAML, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse default sections: %w", err)
	}

	for i, def := range seed.Sections {
		if _, err := s.store.Insert(ctx, repository.TableSections, repository.Record{
			"name":        def.Name,
			"description": def.Description,
			"sort_order":  def.Order,
			"active":      def.Active,
		}); err != nil {
			return i, storeError("failed to seed section", err)
		}
	}

	slog.Info("default sections seeded", slog.Int("count", len(seed.Sections)))
	return len(seed.Sections), nil
}

func fromRecord(rec repository.Record) model.Section {
	return model.Section{
		ID:          repository.String(rec, repository.FieldID),
		Name:        repository.String(rec, "name"),
		Description: repository.String(rec, "description"),
		Order:       repository.Int(rec, "sort_order"),
		Active:      repository.Bool(rec, "active"),
	}
}

func sortSections(sections []model.Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i], sections[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// storeError はバックエンド障害をStoreUnavailableに変換する。
func storeError(msg string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return model.NewStoreUnavailableError(err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
