package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/chatlink-relay/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if sess.Token == "" || sess.User.Username != "alice" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	sess, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(sess.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != registered.User.ID || claims.Username != "alice" || claims.IsGuest {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	profile, err := svc.Profile(ctx, claims.UserID)
	if err != nil || profile.Username != "alice" {
		t.Fatalf("profile: %+v, %v", profile, err)
	}
}

func TestGuestSession(t *testing.T) {
	svc := newTestAuthService(t)

	sess, err := svc.CreateGuestUser(context.Background())
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if sess.SessionID == "" || !sess.User.IsGuest {
		t.Fatalf("unexpected guest session: %+v", sess)
	}
	claims, err := svc.ValidateToken(sess.Token)
	if err != nil || !claims.IsGuest {
		t.Fatalf("guest claims: %+v, %v", claims, err)
	}
}

func TestValidateTokenRejectsForeignAudience(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), Issuer: "test", Audience: "other", TTL: time.Minute}
	token, err := GenerateToken(cfg, 1, "alice", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	strict := &JWTConfig{Secret: []byte("s"), Issuer: "test", Audience: "test", TTL: time.Minute}
	if _, err := ValidateToken(strict, token); err == nil {
		t.Fatal("expected audience mismatch")
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("wrong")}, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestPasswordPolicy(t *testing.T) {
	for _, pw := range []string{"", "12345", string(make([]byte, 73))} {
		if err := CheckPassword(pw); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("CheckPassword(len %d) = %v", len(pw), err)
		}
	}
	if err := CheckPassword("secret"); err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}

	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !PasswordMatches(hash, "secret") || PasswordMatches(hash, "Secret") {
		t.Fatal("password comparison is wrong")
	}
	if PasswordMatches("", "") {
		t.Fatal("empty hash must never match")
	}
}
