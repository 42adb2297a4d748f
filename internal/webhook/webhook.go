// Package webhook implements push-event ingress (C9, spec.md §4.5): GitHub
// and GitLab signature verification, normalized push-payload parsing, a
// branch-gated auto-deploy decision, and an append-only delivery audit.
//
// Grounded on the teacher's handleWebhook (internal/api/api.go), which
// verifies a GitHub HMAC-SHA256 signature and unmarshals a push payload's
// ref/head_commit fields inline in the HTTP handler. ployer generalizes the
// same shape into a provider-agnostic Ingress: GitLab's plain shared-token
// header (X-Gitlab-Token) is a constant-time string comparison rather than
// an HMAC, so both verification strategies are kept behind one interface.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

// verifySignature reports whether body was signed with secret, GitHub-style:
// the header carries "sha256=<hex-hmac>" and comparison must be constant
// time, matching the teacher's validateGitHubSignature exactly.
func verifySignature(body []byte, header, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// verifyToken reports whether the GitLab shared-token header matches secret.
// GitLab sends the token as plaintext, not an HMAC, so this is a constant-
// time byte comparison rather than a MAC check.
func verifyToken(header, secret string) bool {
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// PushEvent is the normalized shape both providers' push payloads reduce to.
type PushEvent struct {
	Branch        string
	CommitSHA     string
	CommitMessage string
	Author        string
}

type githubPushPayload struct {
	Ref        string `json:"ref"`
	HeadCommit struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"head_commit"`
}

type gitlabPushPayload struct {
	Ref          string `json:"ref"`
	CheckoutSHA  string `json:"checkout_sha"`
	UserName     string `json:"user_name"`
	Commits      []struct {
		Message string `json:"message"`
	} `json:"commits"`
}

// refToBranch strips the refs/heads/ prefix both providers send.
func refToBranch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// ParseGitHubPush decodes a GitHub push-event payload into the normalized
// PushEvent shape.
func ParseGitHubPush(body []byte) (*PushEvent, error) {
	var p githubPushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, perr.Wrap(perr.KindBadInput, "parse github push payload", err)
	}
	return &PushEvent{
		Branch:        refToBranch(p.Ref),
		CommitSHA:     p.HeadCommit.ID,
		CommitMessage: p.HeadCommit.Message,
		Author:        p.HeadCommit.Author.Name,
	}, nil
}

// ParseGitLabPush decodes a GitLab push-event payload into the normalized
// PushEvent shape.
func ParseGitLabPush(body []byte) (*PushEvent, error) {
	var p gitlabPushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, perr.Wrap(perr.KindBadInput, "parse gitlab push payload", err)
	}
	msg := ""
	if len(p.Commits) > 0 {
		msg = p.Commits[len(p.Commits)-1].Message
	}
	return &PushEvent{
		Branch:        refToBranch(p.Ref),
		CommitSHA:     p.CheckoutSHA,
		CommitMessage: msg,
		Author:        p.UserName,
	}, nil
}

// Verify checks an inbound request's authenticity for the given provider.
// header is the provider's signature/token header value (X-Hub-Signature-256
// for GitHub, X-Gitlab-Token for GitLab).
func Verify(provider domain.WebhookProvider, body []byte, header, secret string) bool {
	switch provider {
	case domain.ProviderGitHub:
		return verifySignature(body, header, secret)
	case domain.ProviderGitLab:
		return verifyToken(header, secret)
	default:
		return false
	}
}

// Parse decodes body into a normalized PushEvent for the given provider.
func Parse(provider domain.WebhookProvider, body []byte) (*PushEvent, error) {
	switch provider {
	case domain.ProviderGitHub:
		return ParseGitHubPush(body)
	case domain.ProviderGitLab:
		return ParseGitLabPush(body)
	default:
		return nil, perr.New(perr.KindBadInput, fmt.Sprintf("unsupported webhook provider %q", provider))
	}
}
