// Package auth provides the HTTP authentication middleware for fmstub.
//
// Middleware(creds, next) accepts either "Authorization: Bearer <token>"
// matching creds.BearerToken or HTTP basic credentials matching
// creds.BasicUser/BasicPass, and answers 401 otherwise. The accepted mode is
// stored in the request context (ModeFrom) so handlers can record it.
package auth
