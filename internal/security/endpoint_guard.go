// Package security はバックエンド接続先の検証とSSRF防止付きHTTPクライアントを提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はbaseURLとして許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はプライベートネットワーク遮断時にブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ValidateBaseURL はAppConfigurationのbaseURLを静的に検証する。
// http/httpsかつホストを持つURLのみ許可し、クエリやフラグメントは受け付けない。
func ValidateBaseURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty base URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return nil, fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("empty host in base URL: %s", rawURL)
	}

	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return nil, fmt.Errorf("base URL must not contain a query or fragment: %s", rawURL)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed, nil
}

// EndpointGuard はバックエンド接続先の安全性を検証する。
// BlockPrivateNetworksが無効の場合はスキームとホストの検証のみ行う。
type EndpointGuard struct {
	blockPrivate bool
}

// NewEndpointGuard はEndpointGuardを生成する。
func NewEndpointGuard(blockPrivateNetworks bool) *EndpointGuard {
	return &EndpointGuard{blockPrivate: blockPrivateNetworks}
}

// Validate はbaseURLを検証し、正規化したURLを返す。
// プライベートネットワーク遮断時は、IPリテラルとlocalhostを事前に拒否する。
// DNS解決後のアドレスはHTTPClientが返すクライアント側で検証される。
func (g *EndpointGuard) Validate(rawURL string) (*url.URL, error) {
	parsed, err := ValidateBaseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if !g.blockPrivate {
		return parsed, nil
	}

	host := parsed.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return parsed, nil
	}
	if strings.EqualFold(host, "localhost") {
		return nil, fmt.Errorf("blocked host: %s", host)
	}
	return parsed, nil
}

// HTTPClient はバックエンド呼び出し用のHTTPクライアントを生成する。
// プライベートネットワーク遮断時はsafeurlのクライアントを使い、
// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続を
// DNS解決後のDialer段階でブロックする。
// 接続可能なポートは80、443とbaseURLのポートに限られる。
func (g *EndpointGuard) HTTPClient(baseURL *url.URL, timeout time.Duration) *http.Client {
	if !g.blockPrivate {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts(baseURL)...).
		Build()

	return safeurl.Client(config).Client
}

// allowedPorts はsafeurlに許可するポートを返す。
// baseURLにポート指定がない場合はスキームのデフォルトポートとなる。
func allowedPorts(baseURL *url.URL) []int {
	ports := []int{80, 443}
	if baseURL == nil || baseURL.Port() == "" {
		return ports
	}
	port, err := strconv.Atoi(baseURL.Port())
	if err != nil || slices.Contains(ports, port) {
		return ports
	}
	return append(ports, port)
}

// BlocksPrivateNetworks はプライベートネットワーク遮断が有効かを返す。
func (g *EndpointGuard) BlocksPrivateNetworks() bool {
	return g.blockPrivate
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
