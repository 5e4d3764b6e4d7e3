// Package token mints and consumes the single-use download tokens that
// prove a checkout session was confirmed paid.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"tabguard.app/cloud/models"
	"tabguard.app/cloud/storage"
)

const DefaultTTL = 30 * time.Minute

type Issuer struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewIssuer(store storage.Store) *Issuer {
	return &Issuer{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// Issue mints a 128-bit random opaque token for the given session. No
// collision check; the entropy makes one acceptably improbable.
func (i *Issuer) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id required")
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	record := &models.Token{
		SessionID: sessionID,
		ExpiresAt: i.now().Add(i.ttl).UnixMilli(),
	}
	if err := i.store.SaveToken(ctx, tok, record); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

// Consume atomically deletes and returns the token record. Exactly one
// caller can receive a given token; everyone after, and anyone presenting
// an expired or unknown token, gets (nil, nil). Expiry is checked here as
// well because not every store evicts on TTL.
func (i *Issuer) Consume(ctx context.Context, tok string) (*models.Token, error) {
	record, err := i.store.ConsumeToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if record == nil || record.ExpiresAt < i.now().UnixMilli() {
		return nil, nil
	}
	return record, nil
}
