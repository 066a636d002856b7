// Package httpc builds the HTTP clients used for the hosted classifier and
// the speech backends. Every client has dial and handshake timeouts, and
// requests carry a User-Agent naming this service.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on requests that do not set their own.
var UserAgent = "go-billsense/1.0"

// Timeouts.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient returns a client with its own connection pool. A zero timeout
// leaves requests bounded only by their context.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgent{next: newTransport()},
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

type userAgent struct {
	next *http.Transport
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return u.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the pool.
func (u *userAgent) CloseIdleConnections() {
	u.next.CloseIdleConnections()
}
