// Package model はドメインモデルを定義する。
package model

// Section は記事が所属するカテゴリを表す。
// Orderは表示順のヒントであり一意性は保証しない。名前の重複も許容する。
type Section struct {
	ID          string
	Name        string
	Description string
	Order       int
	Active      bool
}

// SectionFields はセクション作成時の入力フィールド。
// Orderがnilの場合は既存件数+1が割り当てられる。
type SectionFields struct {
	Name        string
	Description string
	Order       *int
	Active      bool
}

// SectionPatch はセクションの部分更新を表す。nilのフィールドは変更しない。
type SectionPatch struct {
	Name        *string
	Description *string
	Order       *int
	Active      *bool
}
