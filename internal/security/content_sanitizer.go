// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は記事本文のHTMLを許可リストベースのbluemondayポリシーでサニタイズし、
// 公開ページやRSSに埋め込まれる本文からスクリプトやイベント属性を取り除く。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は記事本文のサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize は本文を保存前にサニタイズする。
	// 段落・見出し・リスト・引用・強調・リンク・httpsの画像のみを通過させる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
	// Excerpt は本文からタグを除去したプレーンテキストを最大maxRunes文字で返す。
	Excerpt(rawHTML string, maxRunes int) string
}

// contentSanitizer はContentSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type contentSanitizer struct {
	body  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style は許可リストにないため除去される
	p.AllowElements(
		"p", "br", "h2", "h3", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "u",
	)

	// リンクと画像はhttps（リンクはmailtoも）の絶対URLのみ。外部リンクには target="_blank" と rel="noopener noreferrer" を付与する
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https", "mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.RequireParseableURLs(true)

	return &contentSanitizer{
		body:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.body.Sanitize(rawHTML)
}

// Excerpt は本文の抜粋をプレーンテキストで返す。
// 連続する空白は1つにまとめ、切り詰めた場合は末尾に "…" を付ける。
func (s *contentSanitizer) Excerpt(rawHTML string, maxRunes int) string {
	text := html.UnescapeString(s.plain.Sanitize(rawHTML))
	text = strings.Join(strings.Fields(text), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
