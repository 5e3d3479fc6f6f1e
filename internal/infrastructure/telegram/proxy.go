package telegram

import (
	"fmt"
	"net"

	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/net/proxy"

	"github.com/solitack2/sender-service/internal/domain"
)

// resolverForProxy builds a DC resolver that dials Telegram through the
// given egress proxy. A nil proxy yields the default direct resolver.
func resolverForProxy(p *domain.Proxy) (dcs.Resolver, error) {
	if p == nil {
		return dcs.Plain(dcs.PlainOptions{}), nil
	}

	if p.Scheme != "socks5" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", p.Scheme)
	}

	var auth *proxy.Auth
	if p.Username != "" {
		auth = &proxy.Auth{
			User:     p.Username,
			Password: p.Password,
		}
	}

	addr := net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
	dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support context dialing")
	}

	return dcs.Plain(dcs.PlainOptions{
		Dial: contextDialer.DialContext,
	}), nil
}
