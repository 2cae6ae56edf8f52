package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newAuthFixture(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(testConfig(), newTestRedis(t))
}

func TestCandidateTokenRoundTrip(t *testing.T) {
	svc := newAuthFixture(t)
	ctx := context.Background()
	formID := uuid.New()

	token, err := svc.GenerateCandidateToken(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TokenType != TokenTypeCandidate {
		t.Errorf("token type = %s, want candidate", claims.TokenType)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("email = %s", claims.Email)
	}
	if claims.FormID != formID.String() {
		t.Errorf("form id = %s, want %s", claims.FormID, formID)
	}

	if err := svc.ValidateCandidateSession(ctx, claims.FormID, claims.Email, claims.ID); err != nil {
		t.Errorf("session validation failed: %v", err)
	}
}

func TestRepeatLoginSupersedesSession(t *testing.T) {
	svc := newAuthFixture(t)
	ctx := context.Background()
	formID := uuid.New()

	first, err := svc.GenerateCandidateToken(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.GenerateCandidateToken(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	firstClaims, _ := svc.ValidateToken(first)
	secondClaims, _ := svc.ValidateToken(second)

	if err := svc.ValidateCandidateSession(ctx, firstClaims.FormID, firstClaims.Email, firstClaims.ID); err == nil {
		t.Error("superseded token should not validate")
	}
	if err := svc.ValidateCandidateSession(ctx, secondClaims.FormID, secondClaims.Email, secondClaims.ID); err != nil {
		t.Errorf("latest token should validate: %v", err)
	}
}

func TestRevokeCandidateSession(t *testing.T) {
	svc := newAuthFixture(t)
	ctx := context.Background()
	formID := uuid.New()

	token, err := svc.GenerateCandidateToken(ctx, formID, "a@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, _ := svc.ValidateToken(token)

	if err := svc.RevokeCandidateSession(ctx, claims.FormID, claims.Email); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	err = svc.ValidateCandidateSession(ctx, claims.FormID, claims.Email, claims.ID)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestManagerTokenRoundTrip(t *testing.T) {
	svc := newAuthFixture(t)

	token, err := svc.GenerateManagerToken(42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TokenType != TokenTypeManager {
		t.Errorf("token type = %s, want manager", claims.TokenType)
	}
	if claims.ManagerID != 42 {
		t.Errorf("manager id = %d, want 42", claims.ManagerID)
	}
}

func TestValidateTokenRejectsForgedSignature(t *testing.T) {
	svc := newAuthFixture(t)
	other := NewAuthService(testConfig(), newTestRedis(t))
	other.cfg.JWTSecret = "different-secret"

	token, err := other.GenerateManagerToken(1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret should be rejected")
	}
}

func TestCheckSharedSecret(t *testing.T) {
	svc := newAuthFixture(t)

	if err := svc.CheckSharedSecret("081234567890", "081234567890"); err != nil {
		t.Errorf("matching secret rejected: %v", err)
	}
	if err := svc.CheckSharedSecret("081234567890", "000000000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	svc := newAuthFixture(t)

	hash, err := svc.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := svc.CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := svc.CheckPassword(hash, "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}
