// Package security はアプリケーションのセキュリティ機能を提供する。
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

// SSRFGuardService は外部通知先へのリクエストを安全に行うためのインターフェース。
// 掲載イベントのWebhook通知で使用する。
type SSRFGuardService interface {
	// NewSafeClient はプライベートIP・ループバック・リンクローカル宛ての接続を
	// Dialer段階で拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は通知先URLを設定読み込み時に静的検証する。
	ValidateURL(rawURL string) error
}

// blockedNetworks はValidateURLで拒否するネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, *network)
	}
	return networks
}

// SSRFGuard はSSRFGuardServiceの実装。
type SSRFGuard struct {
	schemes []string
	ports   []int
}

// Option はSSRFGuardの設定を変更する。
type Option func(*SSRFGuard)

// WithAllowedPorts は接続を許可するポートを置き換える。
func WithAllowedPorts(ports ...int) Option {
	return func(g *SSRFGuard) {
		g.ports = ports
	}
}

// NewSSRFGuard はSSRFGuardを生成する。デフォルトはhttp/httpsの80/443のみ許可。
func NewSSRFGuard(opts ...Option) *SSRFGuard {
	g := &SSRFGuard{
		schemes: []string{"http", "https"},
		ports:   []int{80, 443},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
// DNS解決後のIPアドレスも検証されるため、DNS再バインディングにも対応する。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はスキーム・ホスト・IPアドレスを静的に検証する。
// DNS解決は行わないため、解決後のアドレスはNewSafeClient側で検証される。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.allowsScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, g.schemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *SSRFGuard) allowsScheme(scheme string) bool {
	for _, s := range g.schemes {
		if scheme == s {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを返す。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

var _ SSRFGuardService = (*SSRFGuard)(nil)
