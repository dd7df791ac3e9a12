// Package opml はOPMLによる購読フィードのインポートとエクスポートを提供する。
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// categorySeparator はフォルダ階層をカテゴリ文字列にする際の区切り。
const categorySeparator = "/"

// Document はOPML文書のルート要素。
type Document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head はOPMLのメタデータ。
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body はアウトラインの集合。
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline はフォルダまたはフィードを表す。xmlUrlを持つものがフィード。
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Entry はフォルダ階層を平坦化したフィード1件。
type Entry struct {
	Category string // フォルダ階層を "/" で連結したもの
	Title    string
	URL      string
	SiteURL  string
	Podcast  bool
}

// Parse はOPML 1.0/2.0を読み込み、入れ子のアウトラインを平坦化して返す。
func Parse(r io.Reader) ([]Entry, error) {
	var doc Document
	dec := xml.NewDecoder(r)
	dec.CharsetReader = identityCharsetReader
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("OPMLのデコードに失敗しました: %w", err)
	}

	var entries []Entry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := firstNonEmpty(o.Title, o.Text)
				entries = append(entries, Entry{
					Category: strings.Join(path, categorySeparator),
					Title:    strings.TrimSpace(title),
					URL:      strings.TrimSpace(o.XMLURL),
					SiteURL:  strings.TrimSpace(o.HTMLURL),
					Podcast:  strings.EqualFold(o.Type, "podcast"),
				})
				continue
			}
			if len(o.Outlines) > 0 {
				name := strings.TrimSpace(firstNonEmpty(o.Text, o.Title))
				next := path
				if name != "" {
					next = append(append([]string{}, path...), name)
				}
				walk(o.Outlines, next)
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// Build はEntryのリストからOPML 2.0文書を生成する。
// カテゴリの "/" 区切りを入れ子のフォルダとして出力し、フォルダとフィードはタイトル順に並べる。
func Build(title string, entries []Entry, now time.Time) ([]byte, error) {
	root := &folder{children: map[string]*folder{}}
	for _, e := range entries {
		f := root
		for _, name := range splitCategory(e.Category) {
			child, ok := f.children[name]
			if !ok {
				child = &folder{children: map[string]*folder{}}
				f.children[name] = child
			}
			f = child
		}
		f.feeds = append(f.feeds, e)
	}

	doc := Document{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: now.UTC().Format(time.RFC1123Z),
		},
		Body: Body{Outlines: root.outlines()},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("OPMLの生成に失敗しました: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type folder struct {
	children map[string]*folder
	feeds    []Entry
}

func (f *folder) outlines() []Outline {
	names := make([]string, 0, len(f.children))
	for name := range f.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []Outline
	for _, name := range names {
		result = append(result, Outline{
			Text:     name,
			Title:    name,
			Outlines: f.children[name].outlines(),
		})
	}

	feeds := append([]Entry(nil), f.feeds...)
	sort.SliceStable(feeds, func(i, j int) bool {
		return strings.ToLower(feeds[i].Title) < strings.ToLower(feeds[j].Title)
	})
	for _, e := range feeds {
		typ := "rss"
		if e.Podcast {
			typ = "podcast"
		}
		result = append(result, Outline{
			Text:    e.Title,
			Title:   e.Title,
			Type:    typ,
			XMLURL:  e.URL,
			HTMLURL: e.SiteURL,
		})
	}
	return result
}

func splitCategory(category string) []string {
	var parts []string
	for _, p := range strings.Split(category, categorySeparator) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// identityCharsetReader は宣言されたエンコーディングに関わらず入力をそのまま読む。
func identityCharsetReader(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}
