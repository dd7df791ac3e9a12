package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
	"golang.org/x/net/html"
)

// Format はフィードの形式を表す。
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

const (
	detectTimeout     = 10 * time.Second
	maxDetectBodySize = 5 * 1024 * 1024
	sniffSize         = 4096
)

// linkTypes は<link rel="alternate">のtype属性とフィード形式の対応。
var linkTypes = map[string]Format{
	"application/rss+xml":   FormatRSS,
	"application/atom+xml":  FormatAtom,
	"application/feed+json": FormatJSON,
}

// Candidate はHTMLから検出したフィード候補。
type Candidate struct {
	URL    string
	Format Format
	Title  string
}

// URLGuard はフェッチ前のURL検証とHTTPクライアントの生成を抽象化する。
type URLGuard interface {
	Validate(rawURL string) error
	Client(timeout time.Duration) *http.Client
}

// Detector はページURLからフィードURLを見つける。
type Detector struct {
	guard URLGuard
}

// NewDetector はDetectorを生成する。guardがnilの場合は検証なしの標準クライアントを使う。
func NewDetector(guard URLGuard) *Detector {
	return &Detector{guard: guard}
}

// Detect はURLを取得し、フィードならそのURLを、HTMLなら<head>内のリンクから選んだURLを返す。
func (d *Detector) Detect(ctx context.Context, pageURL string) (string, error) {
	if d.guard != nil {
		if err := d.guard.Validate(pageURL); err != nil {
			return "", model.NewSSRFBlockedError()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := d.client().Do(req)
	if err != nil {
		return "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.NewFetchFailedError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetectBodySize))
	if err != nil {
		return "", model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	if IsFeedResponse(contentType, body) {
		return pageURL, nil
	}
	if !strings.Contains(mediaType(contentType), "html") {
		return "", model.NewFeedNotDetectedError(pageURL)
	}

	best := SelectCandidate(ParseLinks(body, pageURL), pageURL)
	if best == nil {
		return "", model.NewFeedNotDetectedError(pageURL)
	}
	return best.URL, nil
}

func (d *Detector) client() *http.Client {
	if d.guard != nil {
		return d.guard.Client(detectTimeout)
	}
	return &http.Client{Timeout: detectTimeout}
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

// IsFeedResponse はContent-Typeと本文の先頭からフィードかどうかを判定する。
// text/xml や application/xml の場合はルート要素を調べる。
func IsFeedResponse(contentType string, body []byte) bool {
	mt := mediaType(contentType)
	if _, ok := linkTypes[mt]; ok {
		return true
	}

	head := body
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}
	prefix := strings.ToLower(string(head))

	switch mt {
	case "text/xml", "application/xml":
		return strings.Contains(prefix, "<rss") ||
			strings.Contains(prefix, "<rdf:rdf") ||
			(strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"))
	case "application/json":
		return strings.Contains(prefix, "https://jsonfeed.org/version/")
	}
	return false
}

// ParseLinks はHTMLの<head>から rel="alternate" のフィードリンクを抽出する。
// 相対URLはbaseURLで解決する。
func ParseLinks(body []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var candidates []Candidate
	z := html.NewTokenizer(bytes.NewReader(body))
	inHead := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return candidates

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return candidates
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return candidates
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			attrs := readAttrs(z)
			format, ok := linkTypes[strings.ToLower(attrs["type"])]
			if !ok || !hasRel(attrs["rel"], "alternate") || attrs["href"] == "" {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(attrs["href"]))
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{
				URL:    base.ResolveReference(ref).String(),
				Format: format,
				Title:  attrs["title"],
			})
		}
	}
}

func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		attrs[strings.ToLower(string(key))] = string(val)
		if !more {
			return attrs
		}
	}
}

func hasRel(rel, want string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == want {
			return true
		}
	}
	return false
}

// SelectCandidate は候補から1件を選ぶ。
// 同一ホストを優先し、次にAtom、RSS、JSON Feedの順。同点なら先頭。
func SelectCandidate(candidates []Candidate, pageURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == pageHost {
			score += 100
		}
		switch c.Format {
		case FormatAtom:
			score += 20
		case FormatRSS:
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &candidates[best]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
