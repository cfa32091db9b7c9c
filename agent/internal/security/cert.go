package security

import (
	"crypto/tls"
	"math"
	"time"
)

// Certificate states reported by Inspect.
const (
	StatusValid    = "valid"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
	StatusNone     = "none"
)

// ExpiringWithin is the window in which a certificate counts as expiring.
const ExpiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate a server presented.
type CertStatus struct {
	Subject  string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	Status   string
}

// Inspect returns the status of the leaf certificate in state at now.
// A nil state or one without peer certificates yields StatusNone.
func Inspect(state *tls.ConnectionState, now time.Time) CertStatus {
	if state == nil || len(state.PeerCertificates) == 0 {
		return CertStatus{Status: StatusNone}
	}

	leaf := state.PeerCertificates[0]
	left := leaf.NotAfter.Sub(now)
	cs := CertStatus{
		Subject:  leaf.Subject.CommonName,
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter,
		DaysLeft: int(math.Floor(left.Hours() / 24)),
	}

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= ExpiringWithin:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}
