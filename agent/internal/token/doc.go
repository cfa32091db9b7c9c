// Package token exchanges an OAuth bundle read from the auth wallet for a
// bearer token using the resource-owner password grant.
//
// Provider.Token runs its own bounded retry loop. An empty access_token, a
// rejected request and a transport error are all retried after the policy's
// backoff; after the last attempt Token reports no token. Callers treat that
// as a signal to fall back to another credential, not as an error.
//
// The bundle carries the six wallet entries listed in BundleKeys. Client
// credentials are sent as HTTP basic auth (<id>:<secret>).
package token
