package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultID is used when a caller names no conversation.
const DefaultID = "default"

var (
	ErrSessionReleased = errors.New("session already released")
	ErrEmptyID         = errors.New("conversation id is required")
)

// Repository persists turns per conversation. Implementations must be safe
// for concurrent use across different conversation IDs.
type Repository interface {
	Load(ctx context.Context, id string) ([]Turn, error)
	Append(ctx context.Context, id string, turns []Turn) error
	Clear(ctx context.Context, id string) error
}

// Store hands out exclusive per-conversation sessions over a Repository.
// Different conversations proceed in parallel; a second Acquire on the same ID
// waits until the first session is released.
type Store struct {
	repo Repository

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, locks: make(map[string]*sessionLock)}
}

// NormalizeID trims id and maps blank IDs to DefaultID.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultID
	}
	return id
}

// Acquire blocks until the session for id is free or ctx is done.
// The caller must Release the returned session.
func (s *Store) Acquire(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	l := s.ref(id)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		s.unref(id)
		return nil, ctx.Err()
	}

	history, err := s.repo.Load(ctx, id)
	if err != nil {
		<-l.sem
		s.unref(id)
		return nil, fmt.Errorf("conversation: load %q: %w", id, err)
	}
	return &Session{store: s, id: id, lock: l, history: history}, nil
}

// Clear removes every turn of id, waiting for any in-flight session first.
func (s *Store) Clear(ctx context.Context, id string) error {
	sess, err := s.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer sess.Release()
	if err := s.repo.Clear(ctx, id); err != nil {
		return fmt.Errorf("conversation: clear %q: %w", id, err)
	}
	sess.history = nil
	return nil
}

// History returns the committed turns of id.
func (s *Store) History(ctx context.Context, id string) ([]Turn, error) {
	turns, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conversation: load %q: %w", id, err)
	}
	return turns, nil
}

func (s *Store) ref(id string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{sem: make(chan struct{}, 1)}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *Store) unref(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

// Session is exclusive access to one conversation for one loop invocation.
type Session struct {
	store   *Store
	id      string
	lock    *sessionLock
	history []Turn

	mu       sync.Mutex
	released bool
}

func (s *Session) ID() string { return s.id }

// History returns a copy of the turns committed before this session plus any
// committed through it.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Commit appends turns in order. The combined history must satisfy
// ValidatePairing; nothing is written otherwise.
func (s *Session) Commit(ctx context.Context, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSessionReleased
	}
	if len(turns) == 0 {
		return nil
	}

	next := make([]Turn, 0, len(s.history)+len(turns))
	next = append(next, s.history...)
	next = append(next, turns...)
	if err := ValidatePairing(next); err != nil {
		return err
	}

	if err := s.store.repo.Append(ctx, s.id, turns); err != nil {
		return fmt.Errorf("conversation: append %q: %w", s.id, err)
	}
	s.history = next
	return nil
}

// Release frees the session for the next caller. Safe to call twice.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	<-s.lock.sem
	s.store.unref(s.id)
}
