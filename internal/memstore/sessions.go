package memstore

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth/repo"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

// Sessions is the refresh session view of a Store.
type Sessions struct{ s *Store }

func (v *Sessions) Save(ctx context.Context, tokenHash string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0, userentity.ErrNotFound
	}
	s.nextSession++
	s.sessions[tokenHash] = repo.Session{
		ID:        s.nextSession,
		TokenHash: tokenHash,
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: expiresAt,
	}
	return s.nextSession, nil
}

func (v *Sessions) Take(ctx context.Context, tokenHash string) (*repo.Session, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	return &sess, nil
}

func (v *Sessions) Delete(ctx context.Context, tokenHash string) error {
	v.s.mu.Lock()
	delete(v.s.sessions, tokenHash)
	v.s.mu.Unlock()
	return nil
}
