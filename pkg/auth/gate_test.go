package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func signedChallenge(t *testing.T, key *ecdsa.PrivateKey, nonce string) (message, signature string) {
	t.Helper()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message = fmt.Sprintf(
		"bridge.local wants you to sign in with your Ethereum account:\n%s\n\nSign in to stagebridge\n\nURI: https://bridge.local\nVersion: 1\nChain ID: 11155420\nNonce: %s\nIssued At: 2026-01-01T00:00:00Z",
		addr, nonce)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return message, hexutil.Encode(sig)
}

func TestChallengeHappyPath(t *testing.T) {
	g := New(Config{Secret: "test-secret", SessionTTL: time.Hour})
	key, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	nonce := g.IssueNonce(ck)
	msg, sig := signedChallenge(t, key, nonce)
	sess, err := g.VerifyChallenge(ck, "bridge.local", msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	wantAddr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	if sess.Address != wantAddr {
		t.Fatalf("address = %s, want %s", sess.Address, wantAddr)
	}
	if sess.DID != "did:pkh:eip155:11155420:"+wantAddr {
		t.Fatalf("did = %s", sess.DID)
	}
	caller, err := g.Authenticate("", "Bearer "+sess.Token)
	if err != nil {
		t.Fatalf("authenticate issued token: %v", err)
	}
	if caller.Address != wantAddr {
		t.Fatalf("caller address = %s", caller.Address)
	}
}

func TestNonceConsumedExactlyOnce(t *testing.T) {
	g := New(Config{Secret: "test-secret"})
	key, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	nonce := g.IssueNonce(ck)
	msg, sig := signedChallenge(t, key, nonce)
	if _, err := g.VerifyChallenge(ck, "", msg, sig); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := g.VerifyChallenge(ck, "", msg, sig); !errors.Is(err, ErrNonceMissing) {
		t.Fatalf("replay should fail with ErrNonceMissing, got %v", err)
	}
}

func TestNonceConsumedOnBadSignature(t *testing.T) {
	g := New(Config{Secret: "test-secret"})
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	nonce := g.IssueNonce(ck)
	msg, _ := signedChallenge(t, key, nonce)
	_, wrongSig := signedChallenge(t, other, nonce)
	// Signature by a different key over a different message body.
	if _, err := g.VerifyChallenge(ck, "", msg, wrongSig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// Nonce was invalidated despite the failure.
	goodMsg, goodSig := signedChallenge(t, key, nonce)
	if _, err := g.VerifyChallenge(ck, "", goodMsg, goodSig); !errors.Is(err, ErrNonceMissing) {
		t.Fatalf("expected ErrNonceMissing after failed verify, got %v", err)
	}
}

func TestAllowListRejectsStranger(t *testing.T) {
	g := New(Config{Secret: "test-secret", Allow: []string{"0x1111111111111111111111111111111111111111"}})
	key, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	nonce := g.IssueNonce(ck)
	msg, sig := signedChallenge(t, key, nonce)
	if _, err := g.VerifyChallenge(ck, "", msg, sig); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestWrongNonceInMessage(t *testing.T) {
	g := New(Config{Secret: "test-secret"})
	key, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	g.IssueNonce(ck)
	msg, sig := signedChallenge(t, key, "deadbeef")
	if _, err := g.VerifyChallenge(ck, "", msg, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestAPIKeyGrantsAccess(t *testing.T) {
	g := New(Config{APIKey: "sekrit", Secret: "test-secret"})
	caller, err := g.Authenticate("sekrit", "")
	if err != nil {
		t.Fatalf("api key rejected: %v", err)
	}
	if caller.Address != "" {
		t.Fatalf("api key caller should have no address")
	}
	if _, err := g.Authenticate("wrong", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	g := New(Config{Secret: "test-secret", SessionTTL: time.Nanosecond})
	key, _ := crypto.GenerateKey()
	ck := ClientKey("10.0.0.1", "ua")

	nonce := g.IssueNonce(ck)
	msg, sig := signedChallenge(t, key, nonce)
	sess, err := g.VerifyChallenge(ck, "", msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := g.Authenticate("", "Bearer "+sess.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestGarbageCredentialsRejected(t *testing.T) {
	g := New(Config{Secret: "test-secret"})
	for _, h := range []string{"", "Bearer ", "Bearer not.a.jwt", "Basic abc"} {
		if _, err := g.Authenticate("", h); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("header %q: expected ErrUnauthorized, got %v", h, err)
		}
	}
}
