// Package task owns the persisted scheduled-task records: identity,
// shape validation, whole-list persistence and change events.
//
// The whole list is stored as one document at StorageKey. Mutations are
// serialized by the Store so overlapping callers never lose each other's writes.
package task
