package config

import (
	"errors"
	"fmt"
	"strings"
)

// Posting property keys.
const (
	KeyURL        = "fmURL"
	KeyAuthWallet = "fmAuthWallet"
	KeyWallet     = "fmWallet"
)

// ErrPostingMissing is returned when the posting properties file is absent.
var ErrPostingMissing = errors.New("config: posting properties file not found")

// Posting holds the target endpoint and the wallets used to authenticate.
type Posting struct {
	// Path is the file the values were read from.
	Path string

	// URL is the target endpoint. Empty is legal here; callers decide.
	URL string

	// AuthWallet holds the OAuth bundle. Optional.
	AuthWallet string

	// Wallet holds the basic-auth credentials.
	Wallet string
}

// LoadPosting reads the posting properties file at path.
func LoadPosting(path string) (*Posting, error) {
	if !exists(path) {
		return nil, fmt.Errorf("%w: %q", ErrPostingMissing, path)
	}
	props, err := readProperties(path)
	if err != nil {
		return nil, err
	}
	return &Posting{
		Path:       path,
		URL:        strings.TrimSpace(props[KeyURL]),
		AuthWallet: strings.TrimSpace(props[KeyAuthWallet]),
		Wallet:     strings.TrimSpace(props[KeyWallet]),
	}, nil
}
