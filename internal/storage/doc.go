// Package storage provides the key-value persistence layer used by agentcron.
//
// Values are JSON documents addressed by a key path such as
// ["scheduler","tasks"] or ["session","ses_..."]. Reads of a key that was
// never written return ErrNotFound.
//
// Drivers:
//   - "file":   one JSON file per key under a root directory
//   - "sqlite": a single kv table in a SQLite database file
package storage
