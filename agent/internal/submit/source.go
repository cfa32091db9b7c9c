package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rupliteflo/fmpost/agent/internal/httpclient"
	"github.com/rupliteflo/fmpost/agent/internal/token"
	"github.com/rupliteflo/fmpost/agent/internal/wallet"
)

// Resolver reads a fixed set of entries from a wallet.
type Resolver interface {
	Resolve(ctx context.Context, walletPath string, keys []string) (wallet.Bundle, error)
}

// TokenFetcher exchanges an OAuth bundle for a bearer token.
type TokenFetcher interface {
	Token(ctx context.Context, b wallet.Bundle) (string, bool)
}

// Source yields the credential for one attempt.
type Source interface {
	Name() string
	Credential(ctx context.Context) (httpclient.Auth, error)
}

// bearerSource derives a fresh token on every call.
type bearerSource struct {
	wallets    Resolver
	tokens     TokenFetcher
	walletPath string
}

func (s *bearerSource) Name() string { return "bearer" }

func (s *bearerSource) Credential(ctx context.Context) (httpclient.Auth, error) {
	b, err := s.wallets.Resolve(ctx, s.walletPath, token.BundleKeys)
	if err != nil {
		return httpclient.Auth{}, fmt.Errorf("%w: oauth bundle: %w", ErrCredentialUnavailable, err)
	}
	tok, ok := s.tokens.Token(ctx, b)
	if !ok {
		return httpclient.Auth{}, ErrTokenUnavailable
	}
	return httpclient.Auth{Mode: httpclient.ModeBearer, Token: tok}, nil
}

// basicSource reads user/password once and reuses them afterwards.
type basicSource struct {
	wallets    Resolver
	walletPath string
	userKey    string
	passKey    string
	cached     *httpclient.Auth
}

func (s *basicSource) Name() string { return "basic" }

func (s *basicSource) Credential(ctx context.Context) (httpclient.Auth, error) {
	if s.cached != nil {
		return *s.cached, nil
	}
	if s.userKey == "" || s.passKey == "" {
		return httpclient.Auth{}, fmt.Errorf("%w: basic-auth wallet entry names not configured", ErrCredentialUnavailable)
	}
	b, err := s.wallets.Resolve(ctx, s.walletPath, []string{s.userKey, s.passKey})
	if err != nil {
		return httpclient.Auth{}, fmt.Errorf("%w: basic wallet: %w", ErrCredentialUnavailable, err)
	}
	user, pass := b.Get(s.userKey), b.Get(s.passKey)
	if user == "" || pass == "" {
		return httpclient.Auth{}, fmt.Errorf("%w: basic wallet entries are empty", ErrCredentialUnavailable)
	}
	s.cached = &httpclient.Auth{Mode: httpclient.ModeBasic, Username: user, Password: pass}
	return *s.cached, nil
}

// firstCredential returns the credential of the first source that has one.
func firstCredential(ctx context.Context, sources []Source) (httpclient.Auth, string, error) {
	var errs []error
	for _, src := range sources {
		auth, err := src.Credential(ctx)
		if err == nil {
			return auth, src.Name(), nil
		}
		slog.Warn("submit: credential source unavailable", "source", src.Name(), "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return httpclient.Auth{}, "", fmt.Errorf("%w: no credential sources", ErrCredentialUnavailable)
	}
	return httpclient.Auth{}, "", errors.Join(errs...)
}
