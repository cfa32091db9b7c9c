package token

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/rupliteflo/fmpost/agent/internal/httpclient"
	"github.com/rupliteflo/fmpost/agent/internal/retry"
	"github.com/rupliteflo/fmpost/agent/internal/wallet"
)

// Wallet entry names that make up the OAuth bundle.
const (
	KeyEndpoint     = "oauthEndpoint"
	KeyClientID     = "E2EoauthClientId"
	KeyClientSecret = "E2EOauthClientSecret"
	KeyScope        = "E2EOauthTokenScope"
	KeyUsername     = "E2EUserName"
	KeyPassword     = "E2EPassword"
)

// BundleKeys lists every entry Token reads from a bundle.
var BundleKeys = []string{KeyEndpoint, KeyClientID, KeyClientSecret, KeyScope, KeyUsername, KeyPassword}

// Request outcomes reported to an Observer.
const (
	OutcomeIssued   = "issued"
	OutcomeEmpty    = "empty"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Observer is told the outcome of every token request.
type Observer func(outcome string)

// Provider fetches bearer tokens.
type Provider struct {
	policy    retry.Policy
	insecure  bool
	sleep     retry.SleepFunc
	transport func(retry.Attempt) http.RoundTripper
	observe   Observer
}

// Option configures a Provider.
type Option func(*Provider)

// WithSleep replaces the backoff sleep.
func WithSleep(fn retry.SleepFunc) Option { return func(p *Provider) { p.sleep = fn } }

// WithTransport replaces the per-attempt transport factory.
func WithTransport(fn func(retry.Attempt) http.RoundTripper) Option {
	return func(p *Provider) { p.transport = fn }
}

// WithObserver registers fn to receive request outcomes.
func WithObserver(fn Observer) Option { return func(p *Provider) { p.observe = fn } }

// New returns a Provider bounded by policy. insecure disables TLS
// certificate verification on the token endpoint.
func New(policy retry.Policy, insecure bool, opts ...Option) *Provider {
	p := &Provider{policy: policy, insecure: insecure, sleep: retry.Sleep}
	p.transport = func(a retry.Attempt) http.RoundTripper {
		return httpclient.NewTransport(httpclient.ForAttempt(a, p.insecure))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a bearer token for b, or ok=false once every attempt has
// failed or ctx is cancelled. Success ends the loop immediately.
func (p *Provider) Token(ctx context.Context, b wallet.Bundle) (token string, ok bool) {
	conf := &oauth2.Config{
		ClientID:     b.Get(KeyClientID),
		ClientSecret: b.Get(KeyClientSecret),
		Endpoint: oauth2.Endpoint{
			TokenURL:  b.Get(KeyEndpoint),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	if scope := strings.TrimSpace(b.Get(KeyScope)); scope != "" {
		conf.Scopes = []string{scope}
	}

	for a := range p.policy.Attempts() {
		tok, err := p.fetch(ctx, conf, a, b.Get(KeyUsername), b.Get(KeyPassword))
		if err == nil {
			p.report(OutcomeIssued)
			slog.Info("token: issued", "attempt", a.Index+1, "token_type", tok.Type())
			return tok.AccessToken, true
		}

		outcome := classify(err)
		p.report(outcome)
		slog.Warn("token: request failed",
			"attempt", a.Index+1,
			"max_attempts", p.policy.MaxAttempts,
			"outcome", outcome,
			"err", err)

		if a.Last {
			break
		}
		slog.Info("token: retrying", "retry_in", a.Sleep)
		if err := p.sleep(ctx, a.Sleep); err != nil {
			slog.Warn("token: retry loop cancelled", "err", err)
			return "", false
		}
	}

	slog.Error("token: no token after maximum number of retries", "max_attempts", p.policy.MaxAttempts)
	return "", false
}

func (p *Provider) fetch(ctx context.Context, conf *oauth2.Config, a retry.Attempt, user, pass string) (*oauth2.Token, error) {
	// oauth2 query-escapes client credentials in the header; the identity
	// provider expects them verbatim, so the header is rewritten raw.
	client := httpclient.Client(p.transport(a), httpclient.Auth{
		Mode:     httpclient.ModeBasic,
		Username: conf.ClientID,
		Password: conf.ClientSecret,
	})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := conf.PasswordCredentialsToken(ctx, user, pass)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errEmptyToken
	}
	return tok, nil
}

var errEmptyToken = errors.New("token: response has no access_token")

// classify maps a fetch error to an outcome label.
func classify(err error) string {
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &re):
		return OutcomeRejected
	case errors.Is(err, errEmptyToken),
		strings.Contains(err.Error(), "missing access_token"):
		return OutcomeEmpty
	default:
		return OutcomeError
	}
}

func (p *Provider) report(outcome string) {
	if p.observe != nil {
		p.observe(outcome)
	}
}
