// Package store keeps the payloads received by fmstub in memory, with
// retention-based eviction, so pipeline dry runs can be inspected.
package store
