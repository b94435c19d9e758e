// Package transport provides the outbound HTTP transports for the
// storefront API client.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Transport kinds accepted by New.
const (
	KindDefault = "default"
	KindChrome  = "chrome"
)

// New returns the transport for kind. The default kind is Go's standard
// transport with the given dial timeout.
func New(kind string, timeout time.Duration) (http.RoundTripper, error) {
	switch kind {
	case "", KindDefault:
		return NewDefault(timeout), nil
	case KindChrome:
		return NewChromeTransport(timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// NewDefault returns a clone of http.DefaultTransport with the dial timeout
// set.
func NewDefault(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	return t
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Some storefront deployments sit behind CDNs that rate limit clients by TLS
// fingerprint, and Go's fingerprint is easy to single out.
//
// This transport dials with uTLS using Chrome's ClientHello and lets ALPN
// pick the protocol:
//
//   1. Dial with uTLS HelloChrome_Auto, offering h2 and http/1.1
//   2. If the server picked h2, frame with Go's http2.Transport
//   3. Otherwise remember the host and use an HTTP/1.1 transport for it
//
// A request only falls back to HTTP/1.1 when the h2 path failed during
// connection setup, so no request is sent twice.
// =============================================================================

// errNotH2 is returned by the h2 dialer when ALPN settled on HTTP/1.1.
var errNotH2 = errors.New("server did not negotiate h2")

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	t := &chromeTransport{dialer: &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}}

	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := dialChromeTLS(ctx, t.dialer, network, addr)
			if err != nil {
				return nil, err
			}
			if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
				conn.Close()
				t.http1Hosts.Store(addr, true)
				return nil, errNotH2
			}
			return conn, nil
		},
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, t.dialer, network, addr)
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return t
}

// chromeTransport routes each host to HTTP/2 or HTTP/1.1 depending on what
// its server negotiated.
type chromeTransport struct {
	dialer     *net.Dialer
	h2         *http2.Transport
	h1         *http.Transport
	http1Hosts sync.Map // "host:port" -> true once the server declined h2
}

// RoundTrip implements http.RoundTripper.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if _, ok := t.http1Hosts.Load(hostPort(req)); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil || !errors.Is(err, errNotH2) {
		return resp, err
	}

	if req.Body != nil && req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("rewinding request body: %w", bodyErr)
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// CloseIdleConnections closes idle connections on both transports.
func (t *chromeTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

func hostPort(req *http.Request) string {
	host := req.URL.Host
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "443")
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
