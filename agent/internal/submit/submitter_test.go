package submit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupliteflo/fmpost/agent/internal/config"
	"github.com/rupliteflo/fmpost/agent/internal/metrics"
	"github.com/rupliteflo/fmpost/agent/internal/retry"
	"github.com/rupliteflo/fmpost/agent/internal/token"
	"github.com/rupliteflo/fmpost/agent/internal/wallet"
)

// fakeWallets returns fixed bundles per wallet path and counts calls.
type fakeWallets struct {
	mu      sync.Mutex
	bundles map[string]wallet.Bundle
	calls   map[string]int
}

func (f *fakeWallets) Resolve(_ context.Context, path string, keys []string) (wallet.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[path]++
	b, ok := f.bundles[path]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	out := wallet.Bundle{}
	for _, k := range keys {
		v, ok := b[k]
		if !ok {
			return nil, wallet.ErrIncomplete
		}
		out[k] = v
	}
	return out, nil
}

// fakeTokens issues a token from the n-th call onward; 0 means never.
type fakeTokens struct {
	issueFrom int
	calls     int
}

func (f *fakeTokens) Token(context.Context, wallet.Bundle) (string, bool) {
	f.calls++
	if f.issueFrom > 0 && f.calls >= f.issueFrom {
		return "tok-123", true
	}
	return "", false
}

type sleepRecorder struct{ slept []time.Duration }

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// target records every POST it receives and answers with status.
type target struct {
	status int
	hits   atomic.Int32

	mu      sync.Mutex
	auth    []string
	ctype   string
	payload string
}

func (t *target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.hits.Add(1)
	body, _ := io.ReadAll(r.Body)
	t.mu.Lock()
	t.auth = append(t.auth, r.Header.Get("Authorization"))
	t.ctype = r.Header.Get("Content-Type")
	t.payload = string(body)
	t.mu.Unlock()
	w.WriteHeader(t.status)
	_, _ = w.Write([]byte(`{"id":"abc"}`))
}

type fixture struct {
	dir      string
	settings config.Settings
	jsonPath string
	wallets  *fakeWallets
	tokens   *fakeTokens
	sleeps   *sleepRecorder
	attempts []retry.Attempt
}

const (
	authWalletName  = "auth.wallet"
	basicWalletName = "basic.wallet"
)

// newFixture writes a posting file for url and a payload file. Both
// wallets exist on disk; the fake resolver serves their bundles.
func newFixture(t *testing.T, url string) *fixture {
	t.Helper()
	dir := t.TempDir()
	authWallet := filepath.Join(dir, authWalletName)
	basicWallet := filepath.Join(dir, basicWalletName)
	require.NoError(t, os.WriteFile(authWallet, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(basicWallet, []byte("x"), 0o600))

	posting := filepath.Join(dir, "posting.properties")
	writePosting(t, posting, url, authWallet, basicWallet)

	jsonPath := filepath.Join(dir, "journal.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"JournalBatch":"B1"}`), 0o600))

	s := config.Defaults()
	s.PostingFile = posting
	s.UserEntry = "fm.user"
	s.PassEntry = "fm.pass"
	s.RetryTimes = 3

	return &fixture{
		dir:      dir,
		settings: s,
		jsonPath: jsonPath,
		wallets: &fakeWallets{bundles: map[string]wallet.Bundle{
			authWallet: {
				token.KeyEndpoint:     "https://idcs.example/oauth2/v1/token",
				token.KeyClientID:     "cid",
				token.KeyClientSecret: "csecret",
				token.KeyScope:        "scope",
				token.KeyUsername:     "e2e",
				token.KeyPassword:     "e2epw",
			},
			basicWallet: {"fm.user": "fmadmin", "fm.pass": "s3cret"},
		}},
		tokens: &fakeTokens{},
		sleeps: &sleepRecorder{},
	}
}

func writePosting(t *testing.T, path, url, authWallet, basicWallet string) {
	t.Helper()
	content := "fmURL=" + url + "\nfmAuthWallet=" + authWallet + "\nfmWallet=" + basicWallet + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (f *fixture) submitter(rt http.RoundTripper, opts ...Option) *Submitter {
	base := []Option{
		WithResolver(f.wallets),
		WithTokenFetcher(f.tokens),
		WithSleep(f.sleeps.sleep),
		WithTransport(func(a retry.Attempt) http.RoundTripper {
			f.attempts = append(f.attempts, a)
			return rt
		}),
	}
	return New(f.settings, append(base, opts...)...)
}

func TestSubmit_SuccessOnFirstAttempt(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, int32(1), tgt.hits.Load())
	assert.Equal(t, []string{"Bearer tok-123"}, tgt.auth)
	assert.Equal(t, ContentType, tgt.ctype)
	assert.Equal(t, `{"JournalBatch":"B1"}`, tgt.payload)
	assert.Empty(t, f.sleeps.slept)
	assert.Zero(t, f.wallets.calls[filepath.Join(f.dir, basicWalletName)], "basic wallet must not be read")
}

func TestSubmit_MissingPayloadMakesNoRequest(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), filepath.Join(f.dir, "nope.json"))
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrFileMissing)
	assert.Zero(t, tgt.hits.Load())
	assert.Zero(t, f.tokens.calls)
	assert.Empty(t, f.attempts)
}

func TestSubmit_MissingPostingFile(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	f.settings.PostingFile = filepath.Join(f.dir, "absent.properties")

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrConfigMissing)
	assert.Empty(t, f.attempts)
}

func TestSubmit_MissingURL(t *testing.T) {
	f := newFixture(t, "")

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrURLMissing)
	assert.Empty(t, f.attempts)
}

func TestSubmit_TransportFailuresExhaustRetries(t *testing.T) {
	f := newFixture(t, "https://fm.example/resources")
	f.tokens.issueFrom = 1
	f.settings.RetryTimes = 4

	var calls int
	failing := roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})

	rec := metrics.New()
	res, err := f.submitter(failing, WithMetrics(rec)).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute}, f.sleeps.slept)
}

func TestSubmit_TimeoutsEscalatePerAttempt(t *testing.T) {
	tgt := &target{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Len(t, f.attempts, 3)
	for n, a := range f.attempts {
		assert.Equal(t, 60*time.Second+time.Duration(n)*60*time.Second, a.ConnectTimeout, "attempt %d", n)
		assert.Equal(t, 120*time.Second+time.Duration(n)*60*time.Second, a.ReadTimeout, "attempt %d", n)
	}
	assert.Equal(t, int32(3), tgt.hits.Load())
}

func TestSubmit_NonCreatedSuccessStatusIsFailure(t *testing.T) {
	tgt := &target{status: http.StatusOK}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1
	f.settings.RetryTimes = 1

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestSubmit_RedirectIsNotFollowed(t *testing.T) {
	elsewhere := &target{status: http.StatusCreated}
	esrv := httptest.NewServer(elsewhere)
	defer esrv.Close()

	var originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		http.Redirect(w, r, esrv.URL+"/capture", http.StatusFound)
	}))
	defer origin.Close()

	f := newFixture(t, origin.URL)
	f.tokens.issueFrom = 1

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), originHits.Load())
	assert.Zero(t, elsewhere.hits.Load())
	assert.Empty(t, elsewhere.auth)
}

// failingBody returns part of a body and then a read error.
type failingBody struct{ sent bool }

func (b *failingBody) Read(p []byte) (int, error) {
	if b.sent {
		return 0, errors.New("connection reset")
	}
	b.sent = true
	return copy(p, `{"id":`), nil
}

func (b *failingBody) Close() error { return nil }

func TestSubmit_BodyReadErrorKeepsStatus(t *testing.T) {
	f := newFixture(t, "https://fm.example/resources")
	f.tokens.issueFrom = 1
	f.settings.RetryTimes = 1

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusCreated,
			Header:     http.Header{},
			Body:       &failingBody{},
			Request:    r,
		}, nil
	})

	res, err := f.submitter(rt).Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
}

func TestSubmit_BasicFallbackIsCached(t *testing.T) {
	tgt := &target{status: http.StatusBadGateway}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)

	res, _ := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	require.Len(t, tgt.auth, 3)
	for _, h := range tgt.auth {
		assert.Equal(t, "Basic Zm1hZG1pbjpzM2NyZXQ=", h)
	}
	assert.Equal(t, 1, f.wallets.calls[filepath.Join(f.dir, basicWalletName)])
	assert.Equal(t, 3, f.wallets.calls[filepath.Join(f.dir, authWalletName)], "oauth bundle re-read every attempt")
	assert.Equal(t, 3, f.tokens.calls)
}

func TestSubmit_BearerPreferredOnceTokenAppears(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 2
	// basic is unavailable so attempt 1 carries no credential
	f.settings.UserEntry = ""

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, []string{"Bearer tok-123"}, tgt.auth)
	assert.Len(t, f.attempts, 1, "no transport built for the credential-less attempt")
	assert.Equal(t, []time.Duration{2 * time.Minute}, f.sleeps.slept)
}

func TestSubmit_NoCredentialStillRetries(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.wallets.bundles = map[string]wallet.Bundle{}

	rec := metrics.New()
	res, err := f.submitter(http.DefaultTransport, WithMetrics(rec)).Submit(context.Background(), f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.Zero(t, tgt.hits.Load())
	assert.Len(t, f.sleeps.slept, 2)
}

func TestSubmit_NoAuthWalletUsesBasic(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1
	writePosting(t, f.settings.PostingFile, srv.URL, "", filepath.Join(f.dir, basicWalletName))

	res, err := f.submitter(http.DefaultTransport).Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Zero(t, f.tokens.calls)
	assert.Equal(t, []string{"Basic Zm1hZG1pbjpzM2NyZXQ="}, tgt.auth)
}

func TestSubmit_CancelledDuringBackoff(t *testing.T) {
	tgt := &target{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1

	ctx, cancel := context.WithCancel(context.Background())
	s := f.submitter(http.DefaultTransport, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return retry.Sleep(ctx, d)
	}))

	res, err := s.Submit(ctx, f.jsonPath)
	assert.Equal(t, Failure, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), tgt.hits.Load())
}

func TestResult_ExitCode(t *testing.T) {
	assert.Equal(t, 0, Success.ExitCode())
	assert.Equal(t, 1, Failure.ExitCode())
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "failure", Failure.String())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeCreated, outcomeOf(nil))
	assert.Equal(t, OutcomeNoCredential, outcomeOf(errors.Join(ErrTokenUnavailable, ErrCredentialUnavailable)))
	assert.Equal(t, OutcomeUnexpectedStatus, outcomeOf(ErrUnexpectedStatus))
	assert.Equal(t, OutcomeTransportError, outcomeOf(ErrTransport))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "[REDACTED len=7]", redact("tok-123"))
}

func TestSubmit_TLSEndpoint(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewTLSServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1

	res, err := f.submitter(srv.Client().Transport).Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, int32(1), tgt.hits.Load())
}

func TestSubmit_DefaultTransportSkipsVerification(t *testing.T) {
	tgt := &target{status: http.StatusCreated}
	srv := httptest.NewTLSServer(tgt)
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.tokens.issueFrom = 1
	s := New(f.settings,
		WithResolver(f.wallets),
		WithTokenFetcher(f.tokens),
		WithSleep(f.sleeps.sleep))

	res, err := s.Submit(context.Background(), f.jsonPath)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
}
