package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/nusendra/ployer/internal/domain"
)

func signGitHub(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyGitHubSignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	secret := "s3cret"
	sig := signGitHub(body, secret)

	if !Verify(domain.ProviderGitHub, body, sig, secret) {
		t.Fatal("expected valid signature to verify")
	}
	if Verify(domain.ProviderGitHub, body, "sha256=deadbeef", secret) {
		t.Fatal("expected tampered signature to fail")
	}
	if Verify(domain.ProviderGitHub, body, sig, "wrong-secret") {
		t.Fatal("expected wrong secret to fail")
	}
	if Verify(domain.ProviderGitHub, body, "", secret) {
		t.Fatal("expected missing header to fail")
	}
}

func TestVerifyGitLabToken(t *testing.T) {
	secret := "shared-token"
	if !Verify(domain.ProviderGitLab, nil, secret, secret) {
		t.Fatal("expected matching token to verify")
	}
	if Verify(domain.ProviderGitLab, nil, "wrong-token", secret) {
		t.Fatal("expected mismatched token to fail")
	}
	if Verify(domain.ProviderGitLab, nil, "", secret) {
		t.Fatal("expected empty token to fail")
	}
}

func TestParseGitHubPush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"head_commit": {"id": "abc123", "message": "fix bug", "author": {"name": "alice"}}
	}`)
	push, err := Parse(domain.ProviderGitHub, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if push.Branch != "main" || push.CommitSHA != "abc123" || push.CommitMessage != "fix bug" || push.Author != "alice" {
		t.Fatalf("unexpected parse result: %+v", push)
	}
}

func TestParseGitLabPush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/develop",
		"checkout_sha": "def456",
		"user_name": "bob",
		"commits": [{"message": "first"}, {"message": "latest"}]
	}`)
	push, err := Parse(domain.ProviderGitLab, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if push.Branch != "develop" || push.CommitSHA != "def456" || push.Author != "bob" || push.CommitMessage != "latest" {
		t.Fatalf("unexpected parse result: %+v", push)
	}
}

func TestParseUnsupportedProvider(t *testing.T) {
	if _, err := Parse(domain.WebhookProvider("bitbucket"), []byte(`{}`)); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
