package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an actor token stays valid.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "duel-arena"

var (
	ErrNoToken      = errors.New("missing actor token")
	ErrInvalidToken = errors.New("invalid actor token")
	ErrTokenExpired = errors.New("actor token expired")
)

// TokenIssuer signs and verifies actor tokens. A token binds a stable
// actor id to an expiry; the server trusts nothing else a client claims
// about who it is. Tokens are HS256 JWTs with the actor id as subject.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// actorClaims is the claims type used for JWT parsing.
type actorClaims struct {
	jwt.RegisteredClaims
}

// NewTokenIssuer creates an issuer. An empty secret generates a random one,
// so tokens do not survive a restart.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("generate token secret: %v", err))
		}
		log.Println("🔐 AUTH_SECRET not set, tokens are valid for this process only")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: key, ttl: ttl, clock: time.Now}
}

// Issue returns a signed token for actorID and its expiry.
func (ti *TokenIssuer) Issue(actorID string) (string, time.Time, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty actor id", ErrInvalidToken)
	}
	now := ti.clock().Truncate(time.Second)
	expires := now.Add(ti.ttl)
	claims := actorClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   actorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign actor token: %w", err)
	}
	return token, expires, nil
}

// Verify checks the signature and expiry and returns the actor id.
func (ti *TokenIssuer) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoToken
	}

	var parsed actorClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if parsed.Issuer != tokenIssuer || parsed.Subject == "" || parsed.ExpiresAt == nil {
		return "", ErrInvalidToken
	}
	if !ti.clock().Before(parsed.ExpiresAt.Time) {
		return "", ErrTokenExpired
	}
	return parsed.Subject, nil
}

// Identify extracts and verifies the actor token of a request: the
// Authorization bearer header first, then the "token" query parameter
// (browsers cannot set headers on a WebSocket handshake).
func (ti *TokenIssuer) Identify(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", ErrInvalidToken
		}
		token = strings.TrimSpace(value)
	} else {
		token = r.URL.Query().Get("token")
	}
	return ti.Verify(token)
}
