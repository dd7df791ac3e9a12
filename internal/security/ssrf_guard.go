package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard はフェッチ前のURL検証とSSRF防止付きHTTPクライアントの生成を行う。
type URLGuard interface {
	// Validate はDNS解決を伴わない静的な検証を行う。
	Validate(rawURL string) error
	// Client はプライベートアドレスへの接続をダイヤル時に拒否するHTTPクライアントを返す。
	Client(timeout time.Duration) *http.Client
}

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // メタデータIPを含む
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// SSRFGuard はsafeurlを使ったURLGuard実装。
type SSRFGuard struct {
	userAgent string
}

// NewSSRFGuard はSSRFGuardを生成する。
func NewSSRFGuard(userAgent string) *SSRFGuard {
	return &SSRFGuard{userAgent: userAgent}
}

// Client はsafeurlでラップしたHTTPクライアントを返す。
// 名前解決後のIPもDialerのControlフックで検証されるため、DNSリバインディングも拒否される。
func (g *SSRFGuard) Client(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	if g.userAgent != "" {
		client.Transport = &userAgentTransport{base: client.Transport, userAgent: g.userAgent}
	}
	return client
}

// Validate はスキーム、ホスト、IPリテラルを検証する。
func (g *SSRFGuard) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
		return nil
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// userAgentTransport はUser-Agentが未設定のリクエストに既定値を付与する。
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// compile-time interface check
var _ URLGuard = (*SSRFGuard)(nil)
