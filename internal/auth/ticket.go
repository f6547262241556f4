// internal/auth/ticket.go
package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ticketAudience = "realtime"

// DefaultTicketTTL bounds how long a realtime ticket can wait before it is
// redeemed on the websocket upgrade.
const DefaultTicketTTL = time.Minute

var ErrInvalidTicket = errors.New("invalid realtime ticket")

// TicketSigner issues short-lived EdDSA JWTs that let a websocket client
// authenticate with a query parameter instead of the session cookie.
type TicketSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewTicketSigner generates a fresh ed25519 key pair. Tickets do not survive
// a restart, which is fine for their lifetime.
func NewTicketSigner(ttl time.Duration) (*TicketSigner, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return newTicketSigner(priv, pub, ttl), nil
}

// NewTicketSignerFromSeed derives the key pair from a hex encoded 32 byte
// seed so that several replicas accept each other's tickets.
func NewTicketSignerFromSeed(hexSeed string, ttl time.Duration) (*TicketSigner, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ticket seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ticket seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newTicketSigner(priv, priv.Public().(ed25519.PublicKey), ttl), nil
}

func newTicketSigner(priv ed25519.PrivateKey, pub ed25519.PublicKey, ttl time.Duration) *TicketSigner {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketSigner{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}
}

// Issue signs a ticket with sub = userID.
func (s *TicketSigner) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{ticketAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, audience and expiry and returns the subject.
func (s *TicketSigner) Verify(ticket string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(ticketAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidTicket)
	}
	return userID, nil
}
