package submit

import "fmt"

// redact replaces a secret with a marker that keeps only its length, so logs
// show whether a token was present without exposing it.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return fmt.Sprintf("[REDACTED len=%d]", len(secret))
}
