// Package notify tells a chat or HTTP webhook about a finished fmpost run.
//
// Supported types: "slack" ({"text": ...}), "teams" (MessageCard) and
// "http" ({"report": {...}}). fmpost sends a report only for failed runs.
package notify
