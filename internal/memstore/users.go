package memstore

import (
	"context"
	"sort"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

// Users is the account view of a Store.
type Users struct{ s *Store }

func (v *Users) Create(ctx context.Context, u *entity.User) error {
	s := v.s
	now := s.timestamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usernames[u.Username]; taken {
		return entity.ErrDuplicateUsername
	}
	u.CreatedAt, u.UpdatedAt = now, now
	stored := *u
	s.users[u.ID] = &stored
	s.usernames[u.Username] = u.ID
	return nil
}

func (v *Users) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	u, ok := v.s.users[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (v *Users) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	id, ok := v.s.usernames[username]
	if !ok {
		return nil, entity.ErrNotFound
	}
	out := *v.s.users[id]
	return &out, nil
}

func (v *Users) List(ctx context.Context, limit, offset int) ([]*entity.User, int, error) {
	v.s.mu.RLock()
	all := make([]*entity.User, 0, len(v.s.users))
	for _, u := range v.s.users {
		out := *u
		all = append(all, &out)
	}
	v.s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, limit, offset), len(all), nil
}

func (v *Users) Update(ctx context.Context, id int64, p entity.Patch) (*entity.User, error) {
	s := v.s
	now := s.timestamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if p.Username != nil && *p.Username != u.Username {
		if _, taken := s.usernames[*p.Username]; taken {
			return nil, entity.ErrDuplicateUsername
		}
		delete(s.usernames, u.Username)
		s.usernames[*p.Username] = id
	}
	p.Apply(u)
	u.UpdatedAt = now
	out := *u
	return &out, nil
}

// Delete removes the user with their sessions and loans. Copies held by
// active loans are given back first.
func (v *Users) Delete(ctx context.Context, id int64) error {
	s := v.s
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return entity.ErrNotFound
	}
	delete(s.users, id)
	delete(s.usernames, u.Username)
	for hash, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, hash)
		}
	}
	s.mu.Unlock()

	now := s.timestamp()
	for _, row := range s.rows() {
		row.mu.Lock()
		var gone []int64
		for loanID, l := range row.loans {
			if l.UserID != id {
				continue
			}
			if l.Active() {
				release(row, now)
			}
			delete(row.loans, loanID)
			gone = append(gone, loanID)
		}
		if len(gone) > 0 {
			s.mu.Lock()
			for _, loanID := range gone {
				delete(s.loanBook, loanID)
			}
			s.mu.Unlock()
		}
		row.mu.Unlock()
	}
	return nil
}
