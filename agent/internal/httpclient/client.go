// Package httpclient builds the per-attempt HTTP clients used for the token
// and submission calls. Connect and read timeouts come from a retry.Attempt;
// credentials are injected by a RoundTripper so callers never touch headers.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/rupliteflo/fmpost/agent/internal/retry"
)

// Options configures one transport.
type Options struct {
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	InsecureSkipVerify bool
}

// ForAttempt returns Options carrying a's timeouts.
func ForAttempt(a retry.Attempt, insecure bool) Options {
	return Options{
		ConnectTimeout:     a.ConnectTimeout,
		ReadTimeout:        a.ReadTimeout,
		InsecureSkipVerify: insecure,
	}
}

// NewTransport returns a transport that gives up dialing after
// ConnectTimeout and waiting for response headers after ReadTimeout.
func NewTransport(o Options) *http.Transport {
	dialer := &net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   o.ConnectTimeout,
		ResponseHeaderTimeout: o.ReadTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: o.InsecureSkipVerify, //nolint:gosec // target endpoints use internal CAs
		},
	}
}

// Auth modes understood by Client.
const (
	ModeNone   = ""
	ModeBearer = "bearer"
	ModeBasic  = "basic"
)

// Auth is the credential applied to every request of a client. Exactly one
// of Token or Username/Password is used, chosen by Mode.
type Auth struct {
	Mode     string
	Token    string
	Username string
	Password string
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case ModeBearer:
		req = req.Clone(req.Context())
		req.Header.Del("Authorization")
		req.Header.Set("Authorization", "Bearer "+t.auth.Token)
	case ModeBasic:
		req = req.Clone(req.Context())
		req.Header.Del("Authorization")
		req.SetBasicAuth(t.auth.Username, t.auth.Password)
	}
	return t.base.RoundTrip(req)
}

// Client wraps base with auth. A nil base uses http.DefaultTransport.
// Redirects are never followed: the 3xx response is returned to the caller
// so credentials are only ever sent to the configured host.
func Client(base http.RoundTripper, auth Auth) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	if auth.Mode != ModeNone {
		base = &authRoundTripper{base: base, auth: auth}
	}
	return &http.Client{Transport: base, CheckRedirect: noRedirect}
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
