package fetch

import (
	"testing"

	"github.com/mmcdole/gofeed"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"3600", 3600},
		{"59:59", 3599},
		{"1:02:03", 3723},
		{" 10:00 ", 600},
		{"1:2:3:4", 0},
		{"abc", 0},
		{"-5", 0},
	}

	for _, tt := range tests {
		if got := parseDuration(tt.in); got != tt.want {
			t.Errorf("parseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

const podcastRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Podcast</title>
    <link>https://podcast.example.com/</link>
    <itunes:image href="https://podcast.example.com/cover.jpg"/>
    <item>
      <title> Episode 1 </title>
      <link>https://podcast.example.com/ep/1</link>
      <guid>ep-1</guid>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
      <description>&lt;p&gt;Show notes&lt;/p&gt;</description>
      <itunes:author>Host</itunes:author>
      <itunes:duration>1:00:00</itunes:duration>
      <itunes:image href="https://podcast.example.com/ep1.jpg"/>
      <enclosure url="https://cdn.example.com/ep1.mp3" length="1000" type="audio/mpeg"/>
    </item>
  </channel>
</rss>`

func TestConvertGofeedItems_Podcast(t *testing.T) {
	parsed, err := gofeed.NewParser().ParseString(podcastRSS)
	if err != nil {
		t.Fatalf("ParseString returned unexpected error: %v", err)
	}

	if got := feedImage(parsed); got != "https://podcast.example.com/cover.jpg" {
		t.Errorf("feedImage = %q", got)
	}

	items := convertGofeedItems(parsed.Items)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	item := items[0]

	if item.Title != "Episode 1" {
		t.Errorf("Title = %q", item.Title)
	}
	if item.GUID != "ep-1" || item.Link != "https://podcast.example.com/ep/1" {
		t.Errorf("GUID/Link = %q / %q", item.GUID, item.Link)
	}
	if item.AudioURL != "https://cdn.example.com/ep1.mp3" {
		t.Errorf("AudioURL = %q", item.AudioURL)
	}
	if item.DurationSeconds != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", item.DurationSeconds)
	}
	if item.Author != "Host" {
		t.Errorf("Author = %q", item.Author)
	}
	if item.PublishedAt == nil || item.PublishedAt.Year() != 2024 {
		t.Errorf("PublishedAt = %v", item.PublishedAt)
	}
	if item.Content != "<p>Show notes</p>" {
		t.Errorf("本文が無い場合は説明文を使う: Content = %q", item.Content)
	}
	found := false
	for _, u := range item.ImageURLs {
		if u == "https://podcast.example.com/ep1.jpg" {
			found = true
		}
	}
	if !found {
		t.Errorf("ImageURLs = %v", item.ImageURLs)
	}
}

func TestConvertGofeedItems_SkipsNil(t *testing.T) {
	items := convertGofeedItems([]*gofeed.Item{nil, {Title: "x", Link: "https://example.com/x"}})
	if len(items) != 1 {
		t.Errorf("len(items) = %d, want 1", len(items))
	}
}
