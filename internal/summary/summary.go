// Package summary はHTML本文からプレーンテキストの抜粋と画像URLを取り出す。
package summary

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// DefaultExcerptLength は抜粋の既定の最大文字数（rune数）。
const DefaultExcerptLength = 280

// skipElements は本文として扱わない要素。
var skipElements = map[string]bool{
	"script":     true,
	"style":      true,
	"noscript":   true,
	"template":   true,
	"figcaption": true,
}

// blockElements は前後に空白を入れて単語の連結を防ぐ要素。
var blockElements = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "td": true, "th": true, "hr": true,
}

// PlainText はHTMLからテキストノードだけを取り出し、連続する空白を1つにまとめる。
func PlainText(body string) string {
	if body == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(body))
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipElements[tag] {
				skipDepth++
			}
			if blockElements[tag] {
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipElements[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[tag] {
				b.WriteByte(' ')
			}
		}
	}
}

// Excerpt はHTMLのプレーンテキストをmaxRunes文字以内に切り詰める。
// 切り詰めた場合は末尾に "…" を付け、単語の途中で切らないよう直前の空白まで戻る。
func Excerpt(body string, maxRunes int) string {
	text := PlainText(body)
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptLength
	}

	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	cut := maxRunes
	for i := maxRunes; i > maxRunes/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}

// ImageURLs は<img src>を出現順に重複なしで返す。相対URLはbaseURLで解決する。
// http(s)以外のスキームは除外する。
func ImageURLs(body, baseURL string) []string {
	if body == "" {
		return nil
	}
	base, _ := url.Parse(baseURL)

	var urls []string
	seen := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(body))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return urls
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "img" || !hasAttr {
			continue
		}

		for {
			key, val, more := z.TagAttr()
			if string(key) == "src" {
				if resolved := resolveImage(base, string(val)); resolved != "" && !seen[resolved] {
					seen[resolved] = true
					urls = append(urls, resolved)
				}
			}
			if !more {
				break
			}
		}
	}
}

func resolveImage(base *url.URL, src string) string {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil || src == "" {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
