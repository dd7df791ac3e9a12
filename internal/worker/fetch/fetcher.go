package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedshelf/internal/content"
	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
	"github.com/hitoshi/feedshelf/internal/security"
)

// ItemImporter はパース済みアイテムをコンテンツとして保存する。
type ItemImporter interface {
	ImportItems(ctx context.Context, feed *model.Feed, items []model.ParsedItem) (content.ImportResult, error)
}

// IconResolver はフィード画像が無い場合にサイトのアイコンURLを求める。
type IconResolver interface {
	Resolve(ctx context.Context, siteURL string) string
}

// Recorder はフェッチ結果を記録する。
type Recorder interface {
	RecordFetch(result string, duration time.Duration)
	RecordImport(created, refreshed, skipped int)
}

// Options はFetcherの動作設定。
type Options struct {
	Timeout         time.Duration // HTTPタイムアウト
	MaxBodySize     int64         // レスポンスボディの上限バイト数
	RefreshInterval time.Duration // 成功時の次回フェッチまでの間隔
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、コンテンツのfind-or-createを実行する。
type Fetcher struct {
	feedRepo repository.FeedRepository
	importer ItemImporter
	guard    security.URLGuard
	icons    IconResolver
	recorder Recorder
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// iconsとrecorderはnilでもよい。
func NewFetcher(
	feedRepo repository.FeedRepository,
	importer ItemImporter,
	guard security.URLGuard,
	icons IconResolver,
	recorder Recorder,
	logger *slog.Logger,
	opts Options,
) *Fetcher {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 5 << 20
	}
	return &Fetcher{
		feedRepo: feedRepo,
		importer: importer,
		guard:    guard,
		icons:    icons,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Fetch はフィードをフェッチし、結果に応じてフィード状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.Feed) error {
	start := f.now()
	result, err := f.fetch(ctx, feed)
	if f.recorder != nil {
		f.recorder.RecordFetch(result, f.now().Sub(start))
	}
	return err
}

func (f *Fetcher) fetch(ctx context.Context, feed *model.Feed) (string, error) {
	start := f.now()

	if err := f.guard.Validate(feed.SourceURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("source_url", feed.SourceURL),
			slog.String("error", err.Error()),
		)
		ApplyStopFeed(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.saveState(ctx, feed)
		return "blocked", fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.SourceURL, nil)
	if err != nil {
		return "error", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*")
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.guard.Client(f.opts.Timeout).Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("source_url", feed.SourceURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return "error", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	status := ClassifyHTTPStatus(resp.StatusCode)
	switch status {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(f.now().Sub(start).Milliseconds())),
		)
		ApplySuccess(feed, f.opts.RefreshInterval, f.now())
		return status.String(), f.updateState(ctx, feed)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチを停止します",
			slog.String("feed_id", feed.ID),
			slog.String("source_url", feed.SourceURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStopFeed(feed, reason)
		return status.String(), f.updateState(ctx, feed)

	case FetchResultBackoff, FetchResultUnknown:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		ApplyBackoff(feed, reason, f.now())
		return FetchResultBackoff.String(), f.updateState(ctx, feed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize))
	if err != nil {
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()), f.now())
		return "error", f.updateState(ctx, feed)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}

	parsedFeed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("source_url", feed.SourceURL),
			slog.String("error", err.Error()),
		)
		ApplyParseFailure(feed, err.Error(), f.now())
		// パース失敗は回数を数えて継続する
		return "parse_failed", f.updateState(ctx, feed)
	}

	items := convertGofeedItems(parsedFeed.Items)
	imported, err := f.importer.ImportItems(ctx, feed, items)
	if err != nil {
		f.logger.Error("コンテンツの保存に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("コンテンツ保存失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return "error", err
	}
	if f.recorder != nil {
		f.recorder.RecordImport(imported.Created, imported.Refreshed, imported.Skipped)
	}

	if err := f.updateMetadata(ctx, feed, parsedFeed, imported); err != nil {
		return "error", err
	}

	ApplySuccess(feed, f.opts.RefreshInterval, f.now())
	if err := f.updateState(ctx, feed); err != nil {
		return "error", err
	}

	f.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_id", feed.ID),
		slog.String("source_url", feed.SourceURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_created", imported.Created),
		slog.Int("items_refreshed", imported.Refreshed),
		slog.Int("items_skipped", imported.Skipped),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(f.now().Sub(start).Milliseconds())),
	)
	return status.String(), nil
}

// updateMetadata はフィードのタイトル、サイトURL、アイコンを反映する。
// 変更があった場合または新規・更新コンテンツがあった場合のみlast_updated_atを進めて保存する。
func (f *Fetcher) updateMetadata(ctx context.Context, feed *model.Feed, parsed *gofeed.Feed, imported content.ImportResult) error {
	changed := imported.Created > 0 || imported.Refreshed > 0

	if parsed.Title != "" && parsed.Title != feed.Title {
		feed.Title = parsed.Title
		changed = true
	}
	if parsed.Link != "" && parsed.Link != feed.SiteURL {
		feed.SiteURL = parsed.Link
		changed = true
	}

	icon := feedImage(parsed)
	if icon == "" && feed.IconURL == "" && f.icons != nil {
		icon = f.icons.Resolve(ctx, feed.SiteURL)
	}
	if icon != "" && icon != feed.IconURL {
		feed.IconURL = icon
		changed = true
	}

	if !changed {
		return nil
	}
	feed.LastUpdatedAt = f.now()
	if err := f.feedRepo.UpdateMetadata(ctx, feed); err != nil {
		f.logger.Error("フィード情報の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (f *Fetcher) updateState(ctx context.Context, feed *model.Feed) error {
	if err := f.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// saveState は別のエラーを返す経路でフェッチ状態を保存する。保存失敗はログのみ。
func (f *Fetcher) saveState(ctx context.Context, feed *model.Feed) {
	_ = f.updateState(ctx, feed)
}
