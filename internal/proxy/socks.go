// Package proxy routes API traffic through a SOCKS5 proxy.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const clientTimeout = 120 * time.Second

// ParseAddr accepts "host:port" or "socks5://[user:pass@]host:port".
func ParseAddr(raw string) (string, *proxy.Auth, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("proxy url: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return "", nil, fmt.Errorf("proxy scheme %q: want socks5", u.Scheme)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("proxy url %q has no host", raw)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	return u.Host, auth, nil
}

// NewSocksClient returns an HTTP client that tunnels through the SOCKS5
// proxy at addr.
func NewSocksClient(addr string) (*http.Client, error) {
	host, auth, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", host, err)
	}

	var dial func(ctx context.Context, network, addr string) (net.Conn, error)
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		dial = cd.DialContext
	} else {
		dial = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{
		Transport: &http.Transport{DialContext: dial},
		Timeout:   clientTimeout,
	}, nil
}
