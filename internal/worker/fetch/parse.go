package fetch

import (
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedshelf/internal/model"
)

// feedImage はフィード画像のURLを返す。itunes:image を優先する。
func feedImage(feed *gofeed.Feed) string {
	if feed.ITunesExt != nil && feed.ITunesExt.Image != "" {
		return feed.ITunesExt.Image
	}
	if feed.Image != nil {
		return feed.Image.URL
	}
	return ""
}

// convertGofeedItems はgofeedのアイテムをmodel.ParsedItemに変換する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedItem {
	parsedItems := make([]model.ParsedItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		parsed := model.ParsedItem{
			GUID:    item.GUID,
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Content: item.Content,
			Summary: item.Description,
		}

		if item.Author != nil {
			parsed.Author = item.Author.Name
		}
		if parsed.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			parsed.Author = item.Authors[0].Name
		}
		if parsed.Author == "" && item.ITunesExt != nil {
			parsed.Author = item.ITunesExt.Author
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			parsed.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.PublishedAt = &t
		}

		// 本文が無い場合は説明文を本文として使う
		if parsed.Content == "" && item.Description != "" {
			parsed.Content = item.Description
		}

		if item.Image != nil && item.Image.URL != "" {
			parsed.ImageURLs = append(parsed.ImageURLs, item.Image.URL)
		}
		if item.ITunesExt != nil {
			if item.ITunesExt.Image != "" && (item.Image == nil || item.Image.URL != item.ITunesExt.Image) {
				parsed.ImageURLs = append(parsed.ImageURLs, item.ITunesExt.Image)
			}
			parsed.DurationSeconds = parseDuration(item.ITunesExt.Duration)
		}

		for _, enc := range item.Enclosures {
			if enc == nil || enc.URL == "" {
				continue
			}
			switch {
			case strings.HasPrefix(enc.Type, "audio/") && parsed.AudioURL == "":
				parsed.AudioURL = enc.URL
			case strings.HasPrefix(enc.Type, "image/"):
				parsed.ImageURLs = append(parsed.ImageURLs, enc.URL)
			}
		}

		parsedItems = append(parsedItems, parsed)
	}

	return parsedItems
}

// parseDuration は itunes:duration（"3600"、"59:59"、"1:02:03"）を秒数に変換する。
// 解釈できない場合は0を返す。
func parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
