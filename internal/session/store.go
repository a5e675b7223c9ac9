package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"agentcron/internal/storage"
)

// Store persists sessions at ["session", <id>].
type Store struct {
	kv storage.KV
	mu sync.Mutex
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

func NewID() string {
	return "ses_" + uuid.Must(uuid.NewV7()).String()
}

func NewMessageID() string {
	return "msg_" + uuid.Must(uuid.NewV7()).String()
}

func key(id string) []string { return []string{"session", id} }

func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	var ses Session
	if err := s.kv.Read(ctx, key(id), &ses); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Session{}, err
	}
	return ses, nil
}

func (s *Store) Put(ctx context.Context, ses Session) error {
	return s.kv.Write(ctx, key(ses.ID), ses)
}

// Append adds msgs to the session and persists it.
func (s *Store) Append(ctx context.Context, id string, updatedAt int64, msgs ...Message) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	ses.Messages = append(ses.Messages, msgs...)
	ses.UpdatedAt = updatedAt
	if err := s.Put(ctx, ses); err != nil {
		return Session{}, err
	}
	return ses, nil
}

// List returns the ids of every stored session.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(k) == 2 {
			out = append(out, k[1])
		}
	}
	return out, nil
}
