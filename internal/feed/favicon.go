package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	faviconTimeout  = 5 * time.Second
	maxFaviconProbe = 64 * 1024
	defaultIconPath = "/favicon.ico"
)

// IconResolver はフィードに画像が無い場合のアイコンURLを決める。
type IconResolver struct {
	guard URLGuard
}

// NewIconResolver はIconResolverを生成する。
func NewIconResolver(guard URLGuard) *IconResolver {
	return &IconResolver{guard: guard}
}

// Resolve はサイトの /favicon.ico が画像として取得できればそのURLを返す。
// 取得できない場合は空文字列を返し、エラーにはしない。
func (r *IconResolver) Resolve(ctx context.Context, siteURL string) string {
	iconURL := faviconURLFor(siteURL)
	if iconURL == "" {
		return ""
	}

	if r.guard != nil {
		if err := r.guard.Validate(iconURL); err != nil {
			slog.Warn("favicon取得: SSRFブロック", "url", iconURL, "error", err)
			return ""
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return ""
	}

	resp, err := r.client().Do(req)
	if err != nil {
		slog.Warn("favicon取得: HTTPリクエスト失敗", "url", iconURL, "error", err)
		return ""
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFaviconProbe))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("favicon未検出", "url", iconURL, "status", resp.StatusCode)
		return ""
	}
	if !strings.HasPrefix(mediaType(resp.Header.Get("Content-Type")), "image/") {
		slog.Debug("favicon取得: 画像以外のContent-Type", "url", iconURL, "content_type", resp.Header.Get("Content-Type"))
		return ""
	}

	return iconURL
}

func (r *IconResolver) client() *http.Client {
	if r.guard != nil {
		return r.guard.Client(faviconTimeout)
	}
	return &http.Client{Timeout: faviconTimeout}
}

// faviconURLFor はサイトURLのオリジン直下の /favicon.ico を返す。
func faviconURLFor(siteURL string) string {
	if siteURL == "" {
		return ""
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: defaultIconPath}).String()
}
