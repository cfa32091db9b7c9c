// Package security reports on the TLS certificate presented by the submission
// endpoint. Certificate verification is usually disabled for these hosts, so
// the submitter logs the leaf certificate's expiry instead of failing on it.
package security
