package model

import "time"

// Content はフィードに属する記事またはポッドキャストのエピソードを表す。
// Kind が KindArticle のものを Article と呼ぶ。
type Content struct {
	ID                      string
	FeedID                  string // フィードに属さない場合は空
	Kind                    Kind
	Title                   string
	Body                    string // サニタイズ済みHTML
	SourceURL               string
	GUID                    string
	Author                  string
	PublishedAt             time.Time
	Summary                 string
	AISummary               string
	IsRead                  bool
	IsFavorite              bool
	IsDeleted               bool
	ImageURLs               []string
	AudioURL                string
	DurationSeconds         int
	PlaybackPositionSeconds int
	LastUpdatedAt           time.Time
	CreatedAt               time.Time
}

// IsUnread は未読カウンタの対象（未読かつ未削除）かどうかを返す。
func (c *Content) IsUnread() bool {
	return !c.IsRead && !c.IsDeleted
}

// ContentFilter はコンテンツ一覧のフィルタ種別を表す。
type ContentFilter string

const (
	// ContentFilterAll は削除されていない全コンテンツ。
	ContentFilterAll ContentFilter = "all"
	// ContentFilterUnread は未読コンテンツのみ。
	ContentFilterUnread ContentFilter = "unread"
	// ContentFilterFavorite はお気に入りのみ。
	ContentFilterFavorite ContentFilter = "favorite"
)

// ContentInput はfind-or-createに渡すコンテンツの初期値。
// 既存レコードが見つかった場合は使用されない。
type ContentInput struct {
	FeedID          string
	Kind            Kind
	URL             string
	GUID            string
	Title           string
	Body            string
	Author          string
	Summary         string
	PublishedAt     *time.Time
	ImageURLs       []string
	AudioURL        string
	DurationSeconds int
}

// ParsedItem はフィードパーサーから取得した未保存のアイテムを表す。
// ワーカーがフィードをパースした後、コンテンツのfind-or-createに渡される。
type ParsedItem struct {
	GUID            string
	Title           string
	Link            string
	Content         string // 未サニタイズのHTML
	Summary         string // 未サニタイズ
	Author          string
	PublishedAt     *time.Time
	ImageURLs       []string
	AudioURL        string
	DurationSeconds int
}
