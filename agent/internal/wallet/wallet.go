// Package wallet resolves named secrets from an encrypted wallet file by
// invoking an external helper process. The wallet itself is never read
// directly.
package wallet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ReadCommand is the helper subcommand that dumps auto-login wallet entries.
const ReadCommand = "readautologinwallet"

var (
	// ErrNotFound is returned when the wallet file does not exist.
	ErrNotFound = errors.New("wallet: file not found")

	// ErrIncomplete is returned when the helper fails or omits a requested key.
	ErrIncomplete = errors.New("wallet: incomplete result")
)

// Bundle maps wallet key names to secret values. A Bundle returned by
// Resolve always holds every requested key.
type Bundle map[string]string

// Get returns the value for key, or "" if absent.
func (b Bundle) Get(key string) string { return b[key] }

// Store resolves bundles through a helper executable.
type Store struct {
	helper string
	runner Runner
}

// New returns a Store that runs helper via r. A nil r uses ExecRunner.
func New(helper string, r Runner) *Store {
	if r == nil {
		r = ExecRunner{}
	}
	return &Store{helper: helper, runner: r}
}

// Resolve reads keys from the wallet at walletPath with a single helper
// invocation. It returns ErrNotFound if the wallet is missing and
// ErrIncomplete if the helper exits non-zero or any key is absent from its
// output; no partial Bundle is ever returned.
func (s *Store) Resolve(ctx context.Context, walletPath string, keys []string) (Bundle, error) {
	if walletPath == "" {
		return nil, fmt.Errorf("%w: no wallet path configured", ErrNotFound)
	}
	if _, err := os.Stat(walletPath); err != nil {
		slog.Warn("wallet: file does not exist", "wallet", walletPath)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, walletPath)
	}

	args := append([]string{ReadCommand, walletPath}, keys...)
	code, out, err := s.runner.Run(ctx, s.helper, args...)
	if err != nil {
		slog.Error("wallet: helper failed to run", "helper", s.helper, "wallet", walletPath, "err", err)
		return nil, fmt.Errorf("%w: run %s: %v", ErrIncomplete, s.helper, err)
	}
	if code != 0 {
		slog.Error("wallet: helper exited with failure", "helper", s.helper, "wallet", walletPath, "exit_code", code)
		return nil, fmt.Errorf("%w: %s exited with status %d", ErrIncomplete, s.helper, code)
	}

	bundle, err := parseOutput(out, keys)
	if err != nil {
		slog.Error("wallet: missing result", "wallet", walletPath, "err", err)
		return nil, err
	}
	return bundle, nil
}

// parseOutput extracts one "result:<key>=<value>" line per key. The first
// matching line wins; values may themselves contain '='.
func parseOutput(out []byte, keys []string) (Bundle, error) {
	found := make(map[string]string, len(keys))
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		rest, ok := strings.CutPrefix(line, "result:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		if _, seen := found[key]; !seen {
			found[key] = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read helper output: %v", ErrIncomplete, err)
	}

	bundle := make(Bundle, len(keys))
	for _, k := range keys {
		v, ok := found[k]
		if !ok {
			return nil, fmt.Errorf("%w: no result for %q", ErrIncomplete, k)
		}
		bundle[k] = v
	}
	return bundle, nil
}
