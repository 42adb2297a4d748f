package crypto

import (
	"testing"

	"github.com/nusendra/ployer/internal/perr"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	e := New("a-test-secret")

	sealed, err := e.Seal("super-secret-value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	plain, err := e.Unseal(sealed)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if plain != "super-secret-value" {
		t.Fatalf("got %q, want %q", plain, "super-secret-value")
	}
}

func TestSealProducesFreshNonce(t *testing.T) {
	e := New("a-test-secret")

	a, err := e.Seal("same-plaintext")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := e.Seal("same-plaintext")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Fatal("two seals of the same plaintext produced identical ciphertext")
	}
}

func TestUnsealWithWrongKeyFails(t *testing.T) {
	sealed, err := New("secret-a").Seal("value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err = New("secret-b").Unseal(sealed)
	if err == nil {
		t.Fatal("expected unseal with the wrong key to fail")
	}
	if perr.KindOf(err) != perr.KindCryptoFailure {
		t.Fatalf("got kind %v, want KindCryptoFailure", perr.KindOf(err))
	}
}

func TestUnsealMalformedInput(t *testing.T) {
	e := New("a-test-secret")

	if _, err := e.Unseal("not-valid-base64!!!"); err == nil {
		t.Fatal("expected malformed base64 to fail")
	}
	if _, err := e.Unseal(""); err == nil {
		t.Fatal("expected empty input to fail")
	}
}
