package submit

import "errors"

// Failure causes. Precondition errors end Submit at once; the others are
// per-attempt causes that only surface wrapped in ErrRetriesExhausted.
var (
	ErrConfigMissing         = errors.New("submit: posting properties file missing")
	ErrFileMissing           = errors.New("submit: payload file missing")
	ErrURLMissing            = errors.New("submit: target URL not configured")
	ErrCredentialUnavailable = errors.New("submit: credential unavailable")
	ErrTokenUnavailable      = errors.New("submit: no bearer token")
	ErrTransport             = errors.New("submit: transport failure")
	ErrUnexpectedStatus      = errors.New("submit: unexpected status")
	ErrRetriesExhausted      = errors.New("submit: retries exhausted")
)

// Attempt outcomes, used as metric labels.
const (
	OutcomeCreated          = "created"
	OutcomeNoCredential     = "no_credential"
	OutcomeTransportError   = "transport_error"
	OutcomeUnexpectedStatus = "unexpected_status"
	OutcomePayloadMissing   = "payload_missing"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCreated
	case errors.Is(err, ErrCredentialUnavailable), errors.Is(err, ErrTokenUnavailable):
		return OutcomeNoCredential
	case errors.Is(err, ErrUnexpectedStatus):
		return OutcomeUnexpectedStatus
	case errors.Is(err, ErrFileMissing):
		return OutcomePayloadMissing
	default:
		return OutcomeTransportError
	}
}
