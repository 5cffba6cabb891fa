// Package auth guards the bridge's write surface. Two credential forms are
// accepted: the static operator key, and a short-lived bearer token issued
// through a nonce challenge signed by the caller's wallet.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrBadInput         = errors.New("bad input")
	ErrNonceMissing     = errors.New("nonce_missing")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrNotAllowed       = errors.New("not allowed")
)

const nonceTTL = 10 * time.Minute

type Config struct {
	APIKey     string
	Secret     string
	SessionTTL time.Duration
	// Allow restricts challenge verification to these wallet addresses.
	// Empty means any address that produces a valid signature.
	Allow []string
}

// Caller is an authenticated write principal. Address is empty for static
// API-key callers.
type Caller struct {
	Address string
}

// Session is the result of a successful challenge verification.
type Session struct {
	Token   string
	Address string
	DID     string
}

type nonceEntry struct {
	nonce string
	ts    time.Time
}

type Gate struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	allow  map[string]bool

	mu     sync.Mutex
	nonces map[string]nonceEntry
}

func New(cfg Config) *Gate {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		b := make([]byte, 32)
		_, _ = rand.Read(b)
		secret = hex.EncodeToString(b)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	allow := map[string]bool{}
	for _, a := range cfg.Allow {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			allow[a] = true
		}
	}
	return &Gate{
		apiKey: strings.TrimSpace(cfg.APIKey),
		secret: []byte(secret),
		ttl:    ttl,
		allow:  allow,
		nonces: map[string]nonceEntry{},
	}
}

// ClientKey identifies a challenge caller by connection identity.
func ClientKey(ip, userAgent string) string {
	return ip + "|" + userAgent
}

// IssueNonce stores a fresh single-use nonce for the client and returns it.
// A new nonce replaces any previous one for the same client.
func (g *Gate) IssueNonce(clientKey string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	nonce := hex.EncodeToString(b)
	now := time.Now()
	g.mu.Lock()
	for k, e := range g.nonces {
		if now.Sub(e.ts) > nonceTTL {
			delete(g.nonces, k)
		}
	}
	g.nonces[clientKey] = nonceEntry{nonce: nonce, ts: now}
	g.mu.Unlock()
	return nonce
}

// takeNonce removes and returns the client's pending nonce. Check-and-delete
// under one lock: a replayed verify request cannot observe the same nonce.
func (g *Gate) takeNonce(clientKey string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, found := g.nonces[clientKey]
	if !found {
		return "", false
	}
	delete(g.nonces, clientKey)
	if time.Since(e.ts) > nonceTTL {
		return "", false
	}
	return e.nonce, true
}

// VerifyChallenge validates a signed challenge message and issues a session
// token. The pending nonce is consumed whatever the outcome.
func (g *Gate) VerifyChallenge(clientKey, host, message, signature string) (Session, error) {
	if strings.TrimSpace(message) == "" || strings.TrimSpace(signature) == "" {
		return Session{}, ErrBadInput
	}
	nonce, found := g.takeNonce(clientKey)
	if !found {
		return Session{}, ErrNonceMissing
	}
	msg, err := parseChallengeMessage(message)
	if err != nil {
		return Session{}, err
	}
	if msg.Nonce != nonce {
		return Session{}, ErrInvalidSignature
	}
	if host != "" && msg.Domain != "" && !strings.EqualFold(msg.Domain, host) {
		return Session{}, ErrInvalidSignature
	}
	recovered, err := recoverAddress(message, signature)
	if err != nil {
		return Session{}, err
	}
	if !strings.EqualFold(recovered, msg.Address) {
		return Session{}, ErrInvalidSignature
	}
	address := strings.ToLower(recovered)
	if len(g.allow) > 0 && !g.allow[address] {
		return Session{}, ErrNotAllowed
	}
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": address,
		"iat": now.Unix(),
		"exp": now.Add(g.ttl).Unix(),
	}).SignedString(g.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:   token,
		Address: address,
		DID:     fmt.Sprintf("did:pkh:eip155:%d:%s", msg.ChainID, address),
	}, nil
}

// Authenticate checks credentials in order: static API key, then bearer
// token. No partial credentials are accepted.
func (g *Gate) Authenticate(apiKey, authorization string) (*Caller, error) {
	if g.apiKey != "" && apiKey == g.apiKey {
		return &Caller{}, nil
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return nil, ErrUnauthorized
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	if raw == "" {
		return nil, ErrUnauthorized
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, okm := t.Method.(*jwt.SigningMethodHMAC); !okm {
			return nil, ErrUnauthorized
		}
		return g.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrUnauthorized
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrUnauthorized
	}
	return &Caller{Address: sub}, nil
}
