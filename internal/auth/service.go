package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth/repo"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidGrant = errors.New("invalid grant")
)

// Config controls token signing and lifetimes.
type Config struct {
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	PrivateKeyFile string
}

func ConfigFromEnv() Config {
	cfg := Config{
		Issuer:         os.Getenv("AUTH_ISSUER"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     30 * 24 * time.Hour,
		PrivateKeyFile: os.Getenv("AUTH_PRIVATE_KEY_FILE"),
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "service-library-go"
	}
	if d, err := time.ParseDuration(os.Getenv("AUTH_ACCESS_TTL")); err == nil && d > 0 {
		cfg.AccessTTL = d
	}
	if d, err := time.ParseDuration(os.Getenv("AUTH_REFRESH_TTL")); err == nil && d > 0 {
		cfg.RefreshTTL = d
	}
	return cfg
}

// SessionStore persists refresh sessions keyed by token hash.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, userID int64, clientID string, expiresAt time.Time) (int64, error)
	Take(ctx context.Context, tokenHash string) (*repo.Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

// Claims are the access token claims. Admin mirrors the user's role at issue
// time; request authorization reloads the user instead of trusting it.
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"adm"`
}

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenService manages the signing key and token issuance.
type TokenService struct {
	key      *rsa.PrivateKey
	kid      string
	cfg      Config
	sessions SessionStore
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewTokenService(cfg Config, sessions SessionStore, logger *zap.SugaredLogger) (*TokenService, error) {
	key, err := loadKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	if cfg.PrivateKeyFile == "" {
		logger.Warn("AUTH_PRIVATE_KEY_FILE not set; using an ephemeral signing key")
	}
	return newTokenService(cfg, key, sessions, logger)
}

func newTokenService(cfg Config, key *rsa.PrivateKey, sessions SessionStore, logger *zap.SugaredLogger) (*TokenService, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(der)
	return &TokenService{
		key:      key,
		kid:      base64.RawURLEncoding.EncodeToString(h[:8]),
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// JWKS returns a minimal JWKS containing the public key.
func (s *TokenService) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}

// IssueTokens signs an access token for u and stores a new refresh session.
func (s *TokenService) IssueTokens(ctx context.Context, u *userentity.User, clientID string) (*TokenPair, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
		Admin: u.IsAdmin,
	}
	if clientID != "" {
		claims.Audience = jwt.ClaimStrings{clientID}
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	access, err := tok.SignedString(s.key)
	if err != nil {
		return nil, err
	}

	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.sessions.Save(ctx, hashToken(refresh), u.ID, clientID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTTL}, nil
}

// ParseAccessToken verifies signature, issuer and expiry and returns the user id.
func (s *TokenService) ParseAccessToken(raw string) (int64, *Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, &claims, nil
}

// ConsumeRefreshToken redeems a refresh token. The session is removed
// whether or not it has expired; a token is never accepted twice.
func (s *TokenService) ConsumeRefreshToken(ctx context.Context, token string) (*repo.Session, error) {
	sess, err := s.sessions.Take(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		return nil, ErrInvalidGrant
	}
	return sess, nil
}

// Revoke removes a refresh token. Unknown tokens are not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, hashToken(token))
}

// hashToken keeps raw refresh tokens out of storage.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
