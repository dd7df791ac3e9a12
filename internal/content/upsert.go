package content

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/summary"
)

// ImportResult はImportItemsの集計結果。
type ImportResult struct {
	Created   int
	Refreshed int
	Skipped   int
}

// ImportItems はフェッチしたアイテムをフィード配下のコンテンツとしてfind-or-createする。
// 既存コンテンツはタイトル・本文・画像・音声が変わった場合のみ上書きする。
// 要約は空の場合のみ補う。既読・お気に入り・削除・AI要約・再生位置は上書きしない。
// 論理削除済みのコンテンツは上書きしない。
// 種別はフィードの種別に従う。URLを持たないアイテムはスキップする。
func (s *Service) ImportItems(ctx context.Context, feed *model.Feed, items []model.ParsedItem) (ImportResult, error) {
	var result ImportResult

	for _, item := range items {
		sourceURL := itemURL(item)
		if sourceURL == "" {
			result.Skipped++
			continue
		}

		body := s.sanitize(item.Content)
		plain := summary.Excerpt(item.Summary, summary.DefaultExcerptLength)
		if plain == "" {
			plain = summary.Excerpt(body, summary.DefaultExcerptLength)
		}
		images := mergeImages(item.ImageURLs, summary.ImageURLs(item.Content, sourceURL))

		input := model.ContentInput{
			FeedID:          feed.ID,
			Kind:            feed.Kind,
			URL:             sourceURL,
			GUID:            item.GUID,
			Title:           item.Title,
			Body:            body,
			Author:          item.Author,
			Summary:         plain,
			PublishedAt:     item.PublishedAt,
			ImageURLs:       images,
			AudioURL:        item.AudioURL,
			DurationSeconds: max(item.DurationSeconds, 0),
		}

		c, created, err := s.FindOrCreate(ctx, input)
		if err != nil {
			if model.IsValidation(err) {
				slog.Warn("アイテムをスキップしました", "feed_id", feed.ID, "url", sourceURL, "error", err)
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("コンテンツのfind-or-createに失敗: %w", err)
		}
		if created {
			result.Created++
			continue
		}
		// last_updated_atはコンパクションの保持期限に使うため進めない
		if c.IsDeleted {
			continue
		}

		if !refresh(c, input, s.now()) {
			continue
		}
		if err := s.contentRepo.Refresh(ctx, c); err != nil {
			return result, fmt.Errorf("コンテンツの上書きに失敗: %w", err)
		}
		result.Refreshed++
	}

	slog.Info("コンテンツ取り込み完了",
		"feed_id", feed.ID,
		"created", result.Created,
		"refreshed", result.Refreshed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// itemURL はアイテムのリンクを返す。リンクが無い場合はURL形式のGUIDを使う。
func itemURL(item model.ParsedItem) string {
	for _, candidate := range []string{item.Link, item.GUID} {
		if u, err := model.NormalizeSourceURL(candidate); err == nil {
			return u
		}
	}
	return ""
}

// refresh はフェッチで得た値をcに反映し、変更があればtrueを返す。
func refresh(c *model.Content, input model.ContentInput, now time.Time) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}

	set(&c.Title, input.Title)
	set(&c.Body, input.Body)
	if c.Summary == "" {
		set(&c.Summary, input.Summary)
	}
	set(&c.Author, input.Author)
	set(&c.GUID, input.GUID)
	set(&c.AudioURL, input.AudioURL)

	if len(input.ImageURLs) > 0 && !slices.Equal(c.ImageURLs, input.ImageURLs) {
		c.ImageURLs = input.ImageURLs
		changed = true
	}
	if input.DurationSeconds > 0 && c.DurationSeconds != input.DurationSeconds {
		c.DurationSeconds = input.DurationSeconds
		changed = true
	}
	if input.PublishedAt != nil && !input.PublishedAt.IsZero() &&
		input.PublishedAt.Unix() != c.PublishedAt.Unix() {
		c.PublishedAt = *input.PublishedAt
		changed = true
	}
	if changed {
		c.LastUpdatedAt = now
	}
	return changed
}

// mergeImages はフィードが示す画像を先に、本文中の画像を後に並べて重複を除く。
func mergeImages(lists ...[]string) []string {
	var merged []string
	for _, list := range lists {
		for _, u := range list {
			if u != "" && !slices.Contains(merged, u) {
				merged = append(merged, u)
			}
		}
	}
	return merged
}
