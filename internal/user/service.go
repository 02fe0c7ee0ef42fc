package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c < b.cost()
}

// Repository is the user store.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	List(ctx context.Context, limit, offset int) ([]*entity.User, int, error)
	Update(ctx context.Context, id int64, p entity.Patch) (*entity.User, error)
	Delete(ctx context.Context, id int64) error
}

var (
	ErrUserNotFound      = entity.ErrNotFound
	ErrDuplicateUsername = entity.ErrDuplicateUsername
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrInvalidInput      = errors.New("invalid input")
)

const maxUsernameLen = 150

// UserService orchestrates registration, authentication and account administration.
type UserService struct {
	repo   Repository
	hasher PasswordHasher
	logger *zap.SugaredLogger
	newID  func() int64
}

func NewUserService(r Repository, hasher PasswordHasher, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher, logger: logger, newID: utilities.NewSnowflakeID}
}

// SignupInput is a registration request.
type SignupInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

// Signup creates a user. The admin flag is honoured only when actor is an admin;
// self-registration always yields a regular user.
func (s *UserService) Signup(ctx context.Context, actor policy.Actor, in SignupInput) (*entity.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:           s.newID(),
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin && actor.IsAdmin && actor.Authenticated,
	}
	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" {
		u.Email = &email
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Infow("user registered", "user_id", u.ID, "username", u.Username, "is_admin", u.IsAdmin)
	return u, nil
}

// AuthenticatePassword verifies username and password and returns the user.
// Unknown users and wrong passwords yield the same error.
func (s *UserService) AuthenticatePassword(ctx context.Context, username, password string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		if newHash, hErr := s.hasher.Hash(password); hErr == nil {
			if _, uErr := s.repo.Update(ctx, u.ID, entity.Patch{PasswordHash: &newHash}); uErr != nil {
				s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", uErr)
			}
		}
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of users.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*entity.User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateInput is an admin edit; nil fields are left unchanged.
type UpdateInput struct {
	Username *string
	Email    *string
	Password *string
	IsAdmin  *bool
}

// Update applies an admin edit to a user.
func (s *UserService) Update(ctx context.Context, id int64, in UpdateInput) (*entity.User, error) {
	var p entity.Patch
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" || len(name) > maxUsernameLen {
			return nil, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLen)
		}
		p.Username = &name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		p.Email = &email
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, fmt.Errorf("%w: password must not be empty", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		p.PasswordHash = &hash
	}
	p.IsAdmin = in.IsAdmin
	u, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user updated", "user_id", id)
	return u, nil
}

// Delete removes a user; copies held by the user's active loans are given back.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("user deleted", "user_id", id)
	return nil
}

// EnsureAdmin creates an admin account with the given credentials when no
// user of that name exists yet.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (*entity.User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}
	system := policy.User(0, true)
	return s.Signup(ctx, system, SignupInput{Username: username, Password: password, IsAdmin: true})
}
