package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoActiveSession    = errors.New("no active session")
)

// TokenType distinguishes candidate vs manager tokens.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeManager   TokenType = "manager"
)

// Claims extends JWT standard claims with app-specific fields. Candidate
// tokens are scoped to exactly one form.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	ManagerID int       `json:"manager_id,omitempty"` // Manager only
	Email     string    `json:"email,omitempty"`      // Candidate only
	FormID    string    `json:"form_id,omitempty"`    // Candidate only
}

// SessionStore is the Redis surface AuthService needs; satisfied by
// *redis.Client and by miniredis-backed clients in tests.
type SessionStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService handles authentication, JWT issuance, and the candidate
// session registry.
type AuthService struct {
	cfg *config.Config
	rdb SessionStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb SessionStore) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckSharedSecret compares the candidate's submitted password against the
// roster-held shared secret in constant time.
func (s *AuthService) CheckSharedSecret(expected, submitted string) error {
	if subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateCandidateToken creates a form-scoped JWT for a candidate and
// registers the session JTI in Redis. A repeat login simply replaces the
// previous session; the old token stops validating.
func (s *AuthService) GenerateCandidateToken(ctx context.Context, formID uuid.UUID, email string) (string, error) {
	jti := uuid.New().String()
	now := time.Now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.CandidateJWTExpiry)),
		},
		TokenType: TokenTypeCandidate,
		Email:     email,
		FormID:    formID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	sessionKey := config.CacheKey.CandidateSessionKey(formID.String(), email)
	if err := s.rdb.Set(ctx, sessionKey, jti, s.cfg.CandidateJWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return signed, nil
}

// GenerateManagerToken creates a JWT for a manager.
func (s *AuthService) GenerateManagerToken(managerID int) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(managerID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ManagerJWTExpiry)),
		},
		TokenType: TokenTypeManager,
		ManagerID: managerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateCandidateSession checks that the token's JTI matches the active
// session in Redis. Tokens from a superseded login fail here.
func (s *AuthService) ValidateCandidateSession(ctx context.Context, formID, email, jti string) error {
	sessionKey := config.CacheKey.CandidateSessionKey(formID, email)
	stored, err := s.rdb.Get(ctx, sessionKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return errors.New("session superseded")
	}
	return nil
}

// RevokeCandidateSession removes a candidate's session from Redis. Used on
// logout and after finalization.
func (s *AuthService) RevokeCandidateSession(ctx context.Context, formID, email string) error {
	return s.rdb.Del(ctx, config.CacheKey.CandidateSessionKey(formID, email)).Err()
}
