package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rupliteflo/fmpost/agent/internal/config"
	"github.com/rupliteflo/fmpost/agent/internal/httpclient"
	"github.com/rupliteflo/fmpost/agent/internal/metrics"
	"github.com/rupliteflo/fmpost/agent/internal/payload"
	"github.com/rupliteflo/fmpost/agent/internal/retry"
	"github.com/rupliteflo/fmpost/agent/internal/security"
	"github.com/rupliteflo/fmpost/agent/internal/token"
	"github.com/rupliteflo/fmpost/agent/internal/wallet"
)

// ContentType is the media type of every submission.
const ContentType = "application/vnd.oracle.adf.resourceitem+json"

// maxLoggedBody caps how much of a response body is logged.
const maxLoggedBody = 2048

// Submitter posts payloads using one immutable Settings value.
type Submitter struct {
	settings  config.Settings
	wallets   Resolver
	tokens    TokenFetcher
	sleep     retry.SleepFunc
	transport func(retry.Attempt) http.RoundTripper
	metrics   *metrics.Recorder
	wait      time.Duration
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithResolver replaces the wallet reader.
func WithResolver(r Resolver) Option { return func(s *Submitter) { s.wallets = r } }

// WithTokenFetcher replaces the token provider.
func WithTokenFetcher(f TokenFetcher) Option { return func(s *Submitter) { s.tokens = f } }

// WithSleep replaces the backoff sleep of the outer loop and of the default
// token provider.
func WithSleep(fn retry.SleepFunc) Option { return func(s *Submitter) { s.sleep = fn } }

// WithTransport replaces the per-attempt transport factory for the POST.
func WithTransport(fn func(retry.Attempt) http.RoundTripper) Option {
	return func(s *Submitter) { s.transport = fn }
}

// WithMetrics records attempts and token requests into r.
func WithMetrics(r *metrics.Recorder) Option { return func(s *Submitter) { s.metrics = r } }

// WithPayloadWait makes Submit wait up to d for the payload file to appear.
func WithPayloadWait(d time.Duration) Option { return func(s *Submitter) { s.wait = d } }

// New returns a Submitter for settings.
func New(settings config.Settings, opts ...Option) *Submitter {
	s := &Submitter{settings: settings, sleep: retry.Sleep}
	s.transport = func(a retry.Attempt) http.RoundTripper {
		return httpclient.NewTransport(httpclient.ForAttempt(a, s.settings.TLSSkipVerify))
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wallets == nil {
		s.wallets = wallet.New(settings.WalletHelper, nil)
	}
	if s.tokens == nil {
		s.tokens = token.New(settings.TokenPolicy(), settings.TLSSkipVerify,
			token.WithSleep(s.sleep),
			token.WithObserver(s.metrics.TokenRequest))
	}
	return s
}

// Submit posts the payload at jsonPath to the URL named in the posting
// properties file. The returned error is nil exactly when the Result is
// Success.
func (s *Submitter) Submit(ctx context.Context, jsonPath string) (Result, error) {
	postingFile := s.settings.PostingFile
	if _, err := os.Stat(postingFile); postingFile == "" || err != nil {
		slog.Error("submit: posting property file does not exist", "path", postingFile)
		return Failure, fmt.Errorf("%w: %q", ErrConfigMissing, postingFile)
	}

	if err := payload.Wait(ctx, jsonPath, s.wait); err != nil {
		slog.Error("submit: json file does not exist", "path", jsonPath, "err", err)
		return Failure, fmt.Errorf("%w: %w", ErrFileMissing, err)
	}

	posting, err := config.LoadPosting(postingFile)
	if err != nil {
		slog.Error("submit: cannot read posting property file", "path", postingFile, "err", err)
		return Failure, fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}
	if posting.URL == "" {
		slog.Error("submit: posting URL is not specified", "path", postingFile, "key", config.KeyURL)
		return Failure, ErrURLMissing
	}

	return s.post(ctx, posting.URL, jsonPath, s.sources(posting))
}

// sources returns the ranked credential sources for one Submit call.
func (s *Submitter) sources(p *config.Posting) []Source {
	var out []Source
	if _, err := os.Stat(p.AuthWallet); p.AuthWallet != "" && err == nil {
		out = append(out, &bearerSource{wallets: s.wallets, tokens: s.tokens, walletPath: p.AuthWallet})
	} else {
		slog.Warn("submit: oauth disabled, check posting property file for the auth wallet",
			"path", p.Path, "key", config.KeyAuthWallet, "wallet", p.AuthWallet)
	}
	out = append(out, &basicSource{
		wallets:    s.wallets,
		walletPath: p.Wallet,
		userKey:    s.settings.UserEntry,
		passKey:    s.settings.PassEntry,
	})
	return out
}

// post runs the outer retry loop.
func (s *Submitter) post(ctx context.Context, url, jsonPath string, sources []Source) (Result, error) {
	policy := s.settings.Policy()
	slog.Info("submit: posting", "url", url, "payload", jsonPath, "max_attempts", policy.MaxAttempts)

	var lastErr error
	for a := range policy.Attempts() {
		err := s.attempt(ctx, a, url, jsonPath, sources)
		s.metrics.Attempt(outcomeOf(err))
		if err == nil {
			slog.Info("submit: post succeeded", "attempt", a.Index+1)
			return Success, nil
		}
		lastErr = err

		slog.Warn("submit: attempt failed",
			"attempt", a.Index+1,
			"max_attempts", policy.MaxAttempts,
			"outcome", outcomeOf(err),
			"err", err)

		if a.Last {
			break
		}
		slog.Info("submit: retrying", "retry_in", a.Sleep)
		if err := s.sleep(ctx, a.Sleep); err != nil {
			slog.Error("submit: retry loop cancelled", "err", err)
			return Failure, fmt.Errorf("%w: cancelled: %w", ErrRetriesExhausted, err)
		}
	}

	slog.Error("submit: post failed after maximum number of retries", "max_attempts", policy.MaxAttempts)
	return Failure, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

// attempt performs one iteration: pick a credential, then POST. A nil
// return means the endpoint answered 201 Created.
func (s *Submitter) attempt(ctx context.Context, a retry.Attempt, url, jsonPath string, sources []Source) error {
	auth, source, err := firstCredential(ctx, sources)
	if err != nil {
		slog.Warn("submit: can't retrieve credential", "attempt", a.Index+1)
		return err
	}

	f, size, err := payload.Open(jsonPath)
	if err != nil {
		if errors.Is(err, payload.ErrMissing) {
			return fmt.Errorf("%w: %w", ErrFileMissing, err)
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", ContentType)

	client := httpclient.Client(s.transport(a), auth)
	defer client.CloseIdleConnections()

	slog.Debug("submit: sending",
		"attempt", a.Index+1,
		"auth", source,
		"token", redact(auth.Token),
		"connect_timeout", a.ConnectTimeout,
		"read_timeout", a.ReadTimeout)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	logCert(security.Inspect(resp.TLS, time.Now()))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	if err != nil {
		slog.Debug("submit: reading response body", "attempt", a.Index+1, "err", err)
	}
	slog.Info("submit: response", "attempt", a.Index+1, "auth", source, "status", resp.StatusCode, "body", string(body))

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// logCert reports the endpoint certificate. Expiry is a warning, never a
// failure.
func logCert(cs security.CertStatus) {
	switch cs.Status {
	case security.StatusNone:
	case security.StatusValid:
		slog.Debug("submit: endpoint certificate", "subject", cs.Subject, "days_left", cs.DaysLeft)
	default:
		slog.Warn("submit: endpoint certificate "+cs.Status,
			"subject", cs.Subject,
			"issuer", cs.Issuer,
			"not_after", cs.NotAfter,
			"days_left", cs.DaysLeft)
	}
}
