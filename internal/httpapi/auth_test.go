package httpapi

import (
	"testing"
	"time"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store/memory"
)

func newTestAuthManager() *AuthManager {
	return NewAuthManager("test-secret-material-0123456789ab", time.Hour, memory.New())
}

func TestLoginIssuesParsableToken(t *testing.T) {
	auth := newTestAuthManager()

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuthManager()

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatal("expected rejection of wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatal("expected rejection of unknown user")
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	auth := newTestAuthManager()

	if _, err := auth.Login(domain.LoginRequest{Username: "  Admin ", Password: "admin123"}); err != nil {
		t.Fatalf("expected trimmed, case-folded username to work, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newTestAuthManager()

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expected expired token rejection")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	auth := newTestAuthManager()
	other := NewAuthManager("another-secret-material-987654321", time.Hour, nil)

	token, err := other.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expected rejection of token signed with a different secret")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	auth := newTestAuthManager()

	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatal("expected short username rejection")
	}
	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "weigher", Password: "123"}); err == nil {
		t.Fatal("expected short password rejection")
	}
	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "operator", Password: "longenough"}); err == nil {
		t.Fatal("expected duplicate username rejection")
	}

	created, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "Weigher", Password: "scale-pass"})
	if err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if created.Username != "weigher" {
		t.Fatalf("expected lowercased username, got %s", created.Username)
	}

	operators := auth.ListOperators()
	var found bool
	for _, op := range operators {
		if op.Username == "weigher" {
			found = true
		}
	}
	if !found {
		t.Fatal("created operator must be listed")
	}
}
