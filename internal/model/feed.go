// Package model はドメインモデルを定義する。
package model

import "time"

// Kind はフィードおよびコンテンツの種別を表す。
type Kind string

const (
	// KindArticle は記事。
	KindArticle Kind = "article"
	// KindPodcast はポッドキャスト。
	KindPodcast Kind = "podcast"
)

// Valid は種別が既知の値かどうかを返す。
func (k Kind) Valid() bool {
	return k == KindArticle || k == KindPodcast
}

// Feed はRSS/Atom/ポッドキャストフィードを表す。
// 所有するContentはpublished_at降順で並ぶ。
type Feed struct {
	ID                string
	Title             string
	SourceURL         string
	SiteURL           string
	IconURL           string
	Category          string
	Kind              Kind
	UnreadCount       int
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	LastUpdatedAt     time.Time
	IsDeleted         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)

// FeedInput はfind-or-createに渡すフィードの初期値。
// 既存レコードが見つかった場合は使用されない。
type FeedInput struct {
	URL      string
	Title    string
	Category string
	Kind     Kind
}
