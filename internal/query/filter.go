// Package query は記事一覧の絞り込みを提供する。
// すべて副作用のない関数で、入力の並び順を保持する。
package query

import (
	"strings"

	"github.com/hitoshi/newsdesk/internal/model"
)

// AllSections はセクションで絞り込まないことを表す選択肢。
const AllSections = "Todas"

// Filter はダッシュボードの絞り込み条件。
type Filter struct {
	Section string // 空またはAllSectionsの場合は絞り込まない
	Search  string // タイトルと作成者名に対する部分一致（大文字小文字を区別しない）
}

// VisibleTo は呼び出し元が一覧で見られる記事を返す。
// 編集者は全件、reporterは自分が作成した記事のみ。未知のロールには何も返さない。
func VisibleTo(caller model.Caller, articles []*model.Article) []*model.Article {
	switch caller.Role {
	case model.RoleEditor:
		return keep(articles, func(*model.Article) bool { return true })
	case model.RoleReporter:
		return keep(articles, func(a *model.Article) bool { return a.AuthorID == caller.ID })
	default:
		return []*model.Article{}
	}
}

// BySection はセクション名が一致する記事を返す。
func BySection(name string, articles []*model.Article) []*model.Article {
	if name == "" || name == AllSections {
		return keep(articles, func(*model.Article) bool { return true })
	}
	return keep(articles, func(a *model.Article) bool { return a.SectionName == name })
}

// BySearch はタイトルまたは作成者名にtermを含む記事を返す。
func BySearch(term string, articles []*model.Article) []*model.Article {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return keep(articles, func(*model.Article) bool { return true })
	}
	return keep(articles, func(a *model.Article) bool {
		return strings.Contains(strings.ToLower(a.Title), term) ||
			strings.Contains(strings.ToLower(a.AuthorDisplayName), term)
	})
}

// PublicListing は公開ページ用の一覧を返す。publishedは公開中の記事のみを含む前提。
func PublicListing(published []*model.Article, section string) []*model.Article {
	return BySection(section, published)
}

// Apply はダッシュボードと同じ順序（セクション、検索語、ロール）で絞り込む。
func Apply(caller model.Caller, articles []*model.Article, f Filter) []*model.Article {
	return VisibleTo(caller, BySearch(f.Search, BySection(f.Section, articles)))
}

func keep(articles []*model.Article, pred func(*model.Article) bool) []*model.Article {
	out := make([]*model.Article, 0, len(articles))
	for _, a := range articles {
		if pred(a) {
			out = append(out, a)
		}
	}
	return out
}
