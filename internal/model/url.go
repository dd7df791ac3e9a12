package model

import (
	"net/url"
	"strings"
)

// NormalizeSourceURL は前後の空白を除去し、ホストを持つ絶対http(s) URLであることを検証する。
// スキームとホストは小文字に揃える。
func NormalizeSourceURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewInvalidURLError("URLが入力されていません")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", NewInvalidURLError(err.Error())
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", NewInvalidURLError("http または https のURLではありません")
	}
	if u.Host == "" {
		return "", NewInvalidURLError("ホストがありません")
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}
