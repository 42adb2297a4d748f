// Package gitclient is the SourceControl adapter (spec.md §4.5 / §6):
// cloning a repository's default or named branch into a build workspace,
// reading the commit it landed on, and generating the SSH deploy keypair a
// private repository clone authenticates with.
//
// Grounded on the teacher's deployFromGit (internal/api/api.go), which
// shells out to "git clone --depth 1 --branch <branch> <url> <dest>" via
// exec.CommandContext and captures combined output into the build log.
// This package keeps that shape but gives it a typed interface instead of
// an inline string-built command, and adds head-commit inspection and
// deploy-key generation the teacher never needed (basepod only deployed
// from public repos cloned over HTTPS).
package gitclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/nusendra/ployer/internal/perr"
)

// SourceControl is the contract the deployment executor clones against.
type SourceControl interface {
	// Clone checks out branch of url into dest at depth 1. If privateKey is
	// non-empty, it is used as an SSH identity for the clone (required for
	// git@ URLs on private repositories). Clone returns the combined
	// stdout/stderr of the underlying git invocation so callers can fold
	// it into a deployment's build log regardless of outcome.
	Clone(ctx context.Context, url, dest, branch, privateKeyPEM string) (output string, err error)

	// HeadCommit returns the SHA and subject line of HEAD in the
	// repository checked out at dir.
	HeadCommit(ctx context.Context, dir string) (sha, message string, err error)

	// GenerateKeypair returns a fresh RSA-4096 SSH deploy keypair: an
	// OpenSSH "authorized_keys"-format public key and a PKCS8 PEM-encoded
	// private key.
	GenerateKeypair() (publicKey, privateKeyPEM string, err error)
}

// Client is the exec.Command-backed SourceControl implementation.
type Client struct{}

// New returns a Client.
func New() *Client {
	return &Client{}
}

// Clone runs git clone --depth 1 --branch <branch> <url> <dest>. When
// privateKeyPEM is set, it is written to a private 0600 temp file for the
// duration of the call and wired in via GIT_SSH_COMMAND, matching the
// teacher's pattern of building one shell command string per invocation
// rather than holding long-lived state.
func (c *Client) Clone(ctx context.Context, url, dest, branch, privateKeyPEM string) (string, error) {
	if err := os.RemoveAll(dest); err != nil {
		return "", perr.Wrap(perr.KindTransient, "clear destination before clone", err)
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	cmd := exec.CommandContext(ctx, "git", args...)

	var keyPath string
	if privateKeyPEM != "" {
		f, err := os.CreateTemp("", "ployer-deploy-key-*")
		if err != nil {
			return "", perr.Wrap(perr.KindTransient, "stage deploy key", err)
		}
		keyPath = f.Name()
		defer os.Remove(keyPath)

		if _, err := f.WriteString(privateKeyPEM); err != nil {
			f.Close()
			return "", perr.Wrap(perr.KindTransient, "stage deploy key", err)
		}
		f.Close()
		if err := os.Chmod(keyPath, 0600); err != nil {
			return "", perr.Wrap(perr.KindTransient, "chmod deploy key", err)
		}

		cmd.Env = append(os.Environ(),
			fmt.Sprintf("GIT_SSH_COMMAND=ssh -i %s -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new", keyPath))
	}

	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, perr.Wrap(perr.KindBadInput, "git clone failed", fmt.Errorf("%w: %s", err, strings.TrimSpace(output)))
	}
	return output, nil
}

// HeadCommit runs git log -1 --format=%H%n%s against dir.
func (c *Client) HeadCommit(ctx context.Context, dir string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "log", "-1", "--format=%H%n%s")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", perr.Wrap(perr.KindTransient, "read head commit", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	lines := strings.SplitN(strings.TrimRight(string(out), "\n"), "\n", 2)
	sha := lines[0]
	message := ""
	if len(lines) > 1 {
		message = lines[1]
	}
	return sha, message, nil
}

// GenerateKeypair generates an RSA-4096 keypair, returning the public half
// in OpenSSH "ssh-rsa AAAA..." form (what a repo host's deploy-key setting
// expects) and the private half as a PKCS8 PEM block ployer seals at rest
// via internal/crypto before persisting it.
func (c *Client) GenerateKeypair() (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return "", "", perr.Wrap(perr.KindCryptoFailure, "generate deploy keypair", err)
	}

	pubSSH, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", perr.Wrap(perr.KindCryptoFailure, "encode deploy public key", err)
	}
	publicKey := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pubSSH)))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", perr.Wrap(perr.KindCryptoFailure, "encode deploy private key", err)
	}
	privatePEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	return publicKey, privatePEM, nil
}

// RepoConfigPath is the optional per-repository override file path Clone's
// caller checks for after a successful clone, generalizing the teacher's
// basepod.yaml convention to ployer's naming.
func RepoConfigPath(sourceDir string) string {
	return filepath.Join(sourceDir, "ployer.yaml")
}
