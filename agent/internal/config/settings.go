package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rupliteflo/fmpost/agent/internal/retry"
)

// Settings keys, as written in the settings file or the environment.
const (
	KeyPostingFile   = "FM_REST_PROPERTY_FILE_LOC"
	KeyConnect       = "FM_CONNECT_TIMEOUT"
	KeyMaxTimeout    = "FM_MAX_TIMEOUT"
	KeyTimeoutStep   = "FM_TIMEOUT_STEP"
	KeyRetryFactor   = "FM_RETRY_FACTOR"
	KeyRetrySleep    = "FM_RETRY_SLEEP"
	KeyRetryTimes    = "FM_RETRY_TIMES"
	KeyUserEntry     = "USER_ENTRY"
	KeyPassEntry     = "PASS_PHRASE_ENTRY"
	KeyWalletHelper  = "FM_WALLET_HELPER"
	KeyTLSSkipVerify = "FM_TLS_SKIP_VERIFY"
	KeyNotifyType    = "FM_NOTIFY_TYPE"
	KeyNotifyURL     = "FM_NOTIFY_URL"
)

// Default values applied when keys are absent.
const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultMaxTimeout     = 120 * time.Second
	DefaultTimeoutStep    = 60 * time.Second
	DefaultRetryFactor    = 2.0
	DefaultRetrySleep     = 2 * time.Minute
	DefaultRetryTimes     = 5
	DefaultWalletHelper   = "scripts/run_fusion_mc.sh"
)

// Settings is the immutable submission configuration. It is loaded once at
// startup and never mutated.
type Settings struct {
	// PostingFile is the path of the posting properties file (fmURL etc.).
	PostingFile string

	// ConnectTimeout and MaxTimeout are the attempt-0 connect and read
	// timeouts; both grow by TimeoutStep per attempt.
	ConnectTimeout time.Duration
	MaxTimeout     time.Duration
	TimeoutStep    time.Duration

	// RetryTimes bounds both the token loop and the submission loop.
	RetryTimes int
	// RetrySleep is the first backoff; written in minutes in the file.
	RetrySleep  time.Duration
	RetryFactor float64

	// UserEntry and PassEntry name the basic-auth entries in fmWallet.
	UserEntry string
	PassEntry string

	// WalletHelper is the executable that reads wallet entries.
	WalletHelper string

	// TLSSkipVerify disables certificate verification on outbound calls.
	TLSSkipVerify bool

	// NotifyType (slack, teams or http) and NotifyURL select the webhook
	// told about failed runs. Empty NotifyURL disables it.
	NotifyType string
	NotifyURL  string
}

// Defaults returns Settings with every default applied.
func Defaults() Settings {
	return Settings{
		ConnectTimeout: DefaultConnectTimeout,
		MaxTimeout:     DefaultMaxTimeout,
		TimeoutStep:    DefaultTimeoutStep,
		RetryTimes:     DefaultRetryTimes,
		RetrySleep:     DefaultRetrySleep,
		RetryFactor:    DefaultRetryFactor,
		WalletHelper:   DefaultWalletHelper,
		TLSSkipVerify:  true,
	}
}

// LoadSettings reads the settings file at path, applies environment
// overrides and validates the result. A missing file yields defaults.
func LoadSettings(path string) (*Settings, error) {
	props := map[string]string{}
	if exists(path) {
		p, err := readProperties(path)
		if err != nil {
			return nil, err
		}
		props = p
	} else if path != "" {
		slog.Warn("config: settings file not found, using defaults", "path", path)
	}

	for _, key := range []string{
		KeyPostingFile, KeyConnect, KeyMaxTimeout, KeyTimeoutStep,
		KeyRetryFactor, KeyRetrySleep, KeyRetryTimes, KeyUserEntry,
		KeyPassEntry, KeyWalletHelper, KeyTLSSkipVerify, KeyNotifyType,
		KeyNotifyURL,
	} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			props[key] = v
		}
	}

	s := fromProps(props)
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &s, nil
}

func fromProps(props map[string]string) Settings {
	s := Defaults()
	s.PostingFile = strings.TrimSpace(props[KeyPostingFile])
	s.ConnectTimeout = seconds(props, KeyConnect, s.ConnectTimeout)
	s.MaxTimeout = seconds(props, KeyMaxTimeout, s.MaxTimeout)
	s.TimeoutStep = seconds(props, KeyTimeoutStep, s.TimeoutStep)
	s.RetryTimes = intValue(props, KeyRetryTimes, s.RetryTimes)
	s.RetrySleep = time.Duration(intValue(props, KeyRetrySleep, int(s.RetrySleep/time.Minute))) * time.Minute
	s.RetryFactor = floatValue(props, KeyRetryFactor, s.RetryFactor)
	s.UserEntry = strings.TrimSpace(props[KeyUserEntry])
	s.PassEntry = strings.TrimSpace(props[KeyPassEntry])
	if v := strings.TrimSpace(props[KeyWalletHelper]); v != "" {
		s.WalletHelper = v
	}
	s.TLSSkipVerify = boolValue(props, KeyTLSSkipVerify, s.TLSSkipVerify)
	s.NotifyType = strings.ToLower(strings.TrimSpace(props[KeyNotifyType]))
	s.NotifyURL = strings.TrimSpace(props[KeyNotifyURL])
	if s.NotifyURL != "" && s.NotifyType == "" {
		s.NotifyType = "http"
	}
	return s
}

// validate checks structural constraints.
func (s Settings) validate() error {
	if err := s.Policy().Validate(); err != nil {
		return fmt.Errorf("%s/%s/%s: %w", KeyRetryTimes, KeyRetryFactor, KeyRetrySleep, err)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyConnect)
	}
	if s.MaxTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyMaxTimeout)
	}
	if s.TimeoutStep < 0 {
		return fmt.Errorf("%s must not be negative", KeyTimeoutStep)
	}
	switch s.NotifyType {
	case "", "slack", "teams", "http":
	default:
		return fmt.Errorf("%s %q unknown: want slack|teams|http", KeyNotifyType, s.NotifyType)
	}
	return nil
}

// Policy returns the retry policy for the submission loop: escalating
// timeouts, geometric sleeps.
func (s Settings) Policy() retry.Policy {
	return retry.Policy{
		Base:           s.RetrySleep,
		Factor:         s.RetryFactor,
		MaxAttempts:    s.RetryTimes,
		ConnectTimeout: s.ConnectTimeout,
		ReadTimeout:    s.MaxTimeout,
		TimeoutStep:    s.TimeoutStep,
	}
}

// TokenPolicy returns the retry policy for the token loop. It shares the
// backoff formula but keeps the base timeouts on every attempt.
func (s Settings) TokenPolicy() retry.Policy {
	p := s.Policy()
	p.TimeoutStep = 0
	return p
}

func seconds(props map[string]string, key string, def time.Duration) time.Duration {
	return time.Duration(intValue(props, key, int(def/time.Second))) * time.Second
}

func intValue(props map[string]string, key string, def int) int {
	raw := strings.TrimSpace(props[key])
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("config: invalid integer value", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func floatValue(props map[string]string, key string, def float64) float64 {
	raw := strings.TrimSpace(props[key])
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("config: invalid numeric value", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func boolValue(props map[string]string, key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(props[key]))
	switch raw {
	case "":
		return def
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		slog.Warn("config: invalid boolean value", "key", key, "value", raw, "default", def)
		return def
	}
}
