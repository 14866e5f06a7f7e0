// Package model はドメインモデルを定義する。
package model

import "time"

// ArticleStatus は記事の公開状態を表す。
// 状態はライフサイクルエンジンの遷移表を通してのみ変更される。
type ArticleStatus string

const (
	// StatusDraft は執筆中の初期状態。
	StatusDraft ArticleStatus = "draft"
	// StatusReady は執筆完了し、編集者のレビュー待ちの状態。
	StatusReady ArticleStatus = "ready"
	// StatusPublished は公開サイトに表示される状態。
	StatusPublished ArticleStatus = "published"
	// StatusDisabled は公開停止された状態。編集者のみ再公開できる。
	StatusDisabled ArticleStatus = "disabled"
)

// ArticleStatuses は定義済みの全状態を遷移順に並べたもの。
var ArticleStatuses = []ArticleStatus{StatusDraft, StatusReady, StatusPublished, StatusDisabled}

// Valid は状態が定義済みの値かどうかを返す。
func (s ArticleStatus) Valid() bool {
	for _, v := range ArticleStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Article は記事を表す。
// AuthorIDは作成後に変更されない。SectionNameは削除済みセクションを指していてもよい。
type Article struct {
	ID                string
	Title             string
	Subtitle          string
	Body              string // サニタイズ済みHTML
	SectionName       string
	ImageRef          string // data URLまたはリモートURL。不透明な文字列として扱う
	AuthorID          string
	AuthorDisplayName string
	Status            ArticleStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ArticleDraft は記事作成時の入力フィールド。
// ID、作成者、状態、タイムスタンプはサービス層が割り当てる。
type ArticleDraft struct {
	Title       string
	Subtitle    string
	Body        string
	SectionName string
	ImageRef    string
}

// ArticlePatch は記事の部分更新を表す。
// nilのフィールドは変更しない。暗黙のデフォルト値は持たない。
type ArticlePatch struct {
	Title       *string
	Subtitle    *string
	Body        *string
	SectionName *string
	ImageRef    *string
	Status      *ArticleStatus
}

// HasContentChanges は本文系フィールドのいずれかが指定されているかを返す。
func (p ArticlePatch) HasContentChanges() bool {
	return p.Title != nil || p.Subtitle != nil || p.Body != nil ||
		p.SectionName != nil || p.ImageRef != nil
}
