// Package transport builds the HTTP clients used for the release catalog
// and for artifact downloads. Both share one cached DNS resolver.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

const (
	// CatalogTimeout bounds one catalog request end to end.
	CatalogTimeout = 20 * time.Second

	// ConnectTimeout bounds dialing and waiting for response headers on a
	// download. The body transfer itself is unbounded.
	ConnectTimeout = 30 * time.Second

	resolverRefresh = 5 * time.Minute
)

var (
	resolverOnce sync.Once
	resolver     *dnscache.Resolver
)

// sharedResolver returns the process-wide DNS cache, refreshed periodically.
func sharedResolver() *dnscache.Resolver {
	resolverOnce.Do(func() {
		resolver = &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(resolverRefresh)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()
	})
	return resolver
}

// newTransport returns a transport dialing through the DNS cache.
func newTransport() *http.Transport {
	r := sharedResolver()
	dialer := &net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := r.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("no addresses resolved for %s", host)
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s: %w", host, lastErr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// CatalogClient returns a client for release index queries.
func CatalogClient() *http.Client {
	return &http.Client{
		Timeout:   CatalogTimeout,
		Transport: newTransport(),
	}
}

// DownloadClient returns a client for artifact downloads. It has no overall
// timeout since large archives may legitimately stream for minutes.
func DownloadClient() *http.Client {
	return &http.Client{
		Transport: newTransport(),
	}
}
