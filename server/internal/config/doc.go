// Package config loads the fmstub configuration from the `server:` section of
// a YAML file.
//
// Config fields:
//   - HTTPPort        port for every endpoint (default 8080)
//   - Retention       how long received submissions stay listed (default 5m)
//   - Token.*         password-grant endpoint: expected client and user
//     credentials, the token handed out, and how many requests to fail first
//   - Basic.*         credentials accepted by basic auth on the resource
//   - Resource.*      submission path (default /fm/resources) and fail_first
//
// Secrets may be given inline or through *_env fields naming an environment
// variable; the variable wins when set.
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
