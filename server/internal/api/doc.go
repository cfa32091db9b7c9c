// Package api implements the HTTP surface of fmstub, a local stand-in for the
// identity service and the FM REST resource used in pipeline dry runs.
//
// New(cfg, store) returns an http.Handler that serves:
//
//	POST <token.path>              password grant; client credentials via basic auth
//	POST <resource.path>           bearer or basic auth; 201 {"id"} on success
//	GET  /api/v1/submissions       received payloads within retention
//	GET  /api/v1/submissions/{id}  one payload; 404 if unknown or expired
//	GET  /api/v1/health            status and request counters
//
// token.fail_first and resource.fail_first make the first requests fail
// (empty token, 503) so client retry behaviour can be exercised.
//
// WithEvents(p) forwards a "token" or "resource" event to p for every
// request that reaches those handlers (fmstub passes its ws.Hub).
//
// No external HTTP framework is used.
package api
