// Package retry holds the backoff policy shared by the token and submission
// loops.
//
// Policy{Base, Factor, MaxAttempts} yields Attempt values through Attempts(),
// a finite sequence that restarts from attempt 0 every time it is ranged over.
// Each Attempt carries the sleep to apply after a failure (Base * Factor^n)
// and the connect/read timeouts for that attempt, which grow by TimeoutStep
// per attempt index.
//
// Sleep blocks for a duration or until ctx is cancelled. Callers hold a
// SleepFunc so tests can record delays instead of waiting.
package retry
