// Package submit posts a pre-built JSON payload to the target endpoint and
// keeps retrying until the endpoint answers 201 Created or the retry budget
// runs out.
//
// Submitter.Submit checks its preconditions before any network activity:
// the posting properties file must exist, the payload file must exist, and
// the posting file must name a target URL. A violated precondition returns
// Failure immediately.
//
// Each attempt of the outer loop walks a ranked list of credential sources
// and uses the first one that yields a credential:
//
//  1. bearer: read the OAuth bundle from fmAuthWallet and exchange it for a
//     token (token.Provider runs its own retry loop). Only present when the
//     auth wallet exists. Neither the bundle nor the token is cached; both
//     are derived again on every attempt.
//  2. basic: read the user/password entries from fmWallet. The first
//     successful read is cached for the rest of the Submit call.
//
// With no credential the attempt is skipped without a network call and the
// loop sleeps and retries. Otherwise the payload is streamed as the body of a
// POST with Content-Type application/vnd.oracle.adf.resourceitem+json and
// either a bearer header or basic auth, never both.
//
// Attempt n (0-based) uses connect timeout base_connect+step*n and read
// timeout base_max+step*n. A transport error and a non-201 status are
// treated the same way: sleep Base*Factor^n, then try again. No sleep
// follows the final attempt.
package submit
