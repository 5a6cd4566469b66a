package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateTokenMatchesConfiguredSecret(t *testing.T) {
	tv := NewTokenValidator(map[string]string{"ci": "secret-123"})
	p, err := tv.ValidateToken(context.Background(), "secret-123")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if p.TokenName != "ci" {
		t.Errorf("TokenName = %q, want %q", p.TokenName, "ci")
	}
}

func TestValidateTokenRejectsUnknown(t *testing.T) {
	tv := NewTokenValidator(map[string]string{"ci": "secret-123"})
	if _, err := tv.ValidateToken(context.Background(), "wrong"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	tv := NewTokenValidator(map[string]string{"ci": "secret-123"})
	if _, err := tv.ValidateToken(context.Background(), ""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestExtractTokenFromAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := ExtractToken(r); got != "abc123" {
		t.Errorf("ExtractToken = %q, want %q", got, "abc123")
	}
}

func TestExtractTokenFromXAuthTokenHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Auth-Token", "xyz789")
	if got := ExtractToken(r); got != "xyz789" {
		t.Errorf("ExtractToken = %q, want %q", got, "xyz789")
	}
}

func TestExtractTokenFromQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=qqq", nil)
	if got := ExtractToken(r); got != "qqq" {
		t.Errorf("ExtractToken = %q, want %q", got, "qqq")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &Principal{TokenName: "ci"})
	p := GetPrincipal(ctx)
	if p == nil || p.TokenName != "ci" {
		t.Errorf("GetPrincipal = %+v, want TokenName ci", p)
	}
}
