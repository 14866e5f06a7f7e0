// Package syndication は公開記事のRSS 2.0フィードを生成する。
package syndication

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/security"
)

// ContentType はRSSレスポンスのContent-Type。
const ContentType = "application/rss+xml; charset=utf-8"

// excerptRunes は<description>に載せる抜粋の最大文字数。
const excerptRunes = 280

// Channel はフィード全体の情報。
type Channel struct {
	Title       string
	Description string
	BaseURL     string // 記事リンクの基点。例: https://news.example.com
	Language    string
}

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Description string  `xml:"description"`
	Category    string  `xml:"category,omitempty"`
	Author      string  `xml:"author,omitempty"`
	PubDate     string  `xml:"pubDate"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Writer は記事一覧をRSSとして書き出す。
type Writer struct {
	channel   Channel
	sanitizer security.ContentSanitizer
}

// NewWriter はWriterを生成する。
func NewWriter(channel Channel, sanitizer security.ContentSanitizer) *Writer {
	return &Writer{channel: channel, sanitizer: sanitizer}
}

// Write はarticlesを与えられた順にRSSの<item>として出力する。
// 公開中でない記事は含めない。
func (w *Writer) Write(out io.Writer, articles []*model.Article) error {
	doc := rss{
		Version: "2.0",
		Channel: rssChannel{
			Title:       w.channel.Title,
			Link:        w.channel.BaseURL,
			Description: w.channel.Description,
			Language:    w.channel.Language,
			Items:       make([]rssItem, 0, len(articles)),
		},
	}

	var latest time.Time
	for _, a := range articles {
		if a.Status != model.StatusPublished {
			continue
		}
		if a.UpdatedAt.After(latest) {
			latest = a.UpdatedAt
		}
		link := w.articleURL(a.ID)
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       a.Title,
			Link:        link,
			GUID:        rssGUID{IsPermaLink: true, Value: link},
			Description: w.sanitizer.Excerpt(a.Body, excerptRunes),
			Category:    a.SectionName,
			Author:      a.AuthorDisplayName,
			PubDate:     a.CreatedAt.UTC().Format(time.RFC1123Z),
		})
	}
	if !latest.IsZero() {
		doc.Channel.LastBuildDate = latest.UTC().Format(time.RFC1123Z)
	}

	if _, err := io.WriteString(out, xml.Header); err != nil {
		return fmt.Errorf("failed to write rss header: %w", err)
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode rss: %w", err)
	}
	return enc.Flush()
}

func (w *Writer) articleURL(id string) string {
	u, err := url.JoinPath(w.channel.BaseURL, "articles", id)
	if err != nil {
		return w.channel.BaseURL + "/articles/" + url.PathEscape(id)
	}
	return u
}
