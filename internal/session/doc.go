// Package session creates agent sessions for a working directory and runs
// prompts against a chat backend.
//
// A Runner bootstraps one Instance per directory, persists sessions in the
// shared key-value store and forwards the conversation to Ollama.
package session
