// Package config loads the submission settings file and the posting
// properties file it points to.
//
// Top-level types:
//   - Settings: timeouts, retry tuning, basic-auth wallet key names, wallet
//     helper path, TLS verification switch, and the posting file location
//   - Posting: fmURL, fmAuthWallet, fmWallet from the posting file
//
// Both files are flat key=value documents parsed with godotenv; files named
// *.yaml or *.yml are read as flat YAML maps instead. A missing settings file
// is not an error: every field keeps its default. Environment variables with
// the same key names override file values.
//
// LoadSettings validates the result; Settings.Policy converts the retry
// fields into a retry.Policy.
package config
