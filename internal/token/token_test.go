package token

import (
	"context"
	"testing"
	"time"

	"tabguard.app/cloud/storage"
)

func TestIssue_RequiresSessionID(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())

	if _, err := issuer.Issue(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty session id")
	}
}

func TestIssue_TokenShape(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())

	tok, err := issuer.Issue(context.Background(), "cs_test")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(tok) != 32 {
		t.Errorf("Expected 32 hex chars (128 bits), got %d: %s", len(tok), tok)
	}
}

func TestConsume_AtMostOnce(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())
	ctx := context.Background()

	tok, err := issuer.Issue(ctx, "cs_test")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	record, err := issuer.Consume(ctx, tok)
	if err != nil {
		t.Fatalf("First consume failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record on first consume, got nil")
	}
	if record.SessionID != "cs_test" {
		t.Errorf("Expected session cs_test, got %s", record.SessionID)
	}

	for i := 0; i < 3; i++ {
		record, err = issuer.Consume(ctx, tok)
		if err != nil {
			t.Fatalf("Repeat consume errored: %v", err)
		}
		if record != nil {
			t.Fatal("Expected nil after token was consumed")
		}
	}
}

func TestConsume_UnknownToken(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())

	record, err := issuer.Consume(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	if err != nil {
		t.Fatalf("Consume errored: %v", err)
	}
	if record != nil {
		t.Fatal("Expected nil for unknown token")
	}
}

func TestConsume_ExpiredToken(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())
	ctx := context.Background()

	base := time.Now()
	issuer.now = func() time.Time { return base }

	tok, err := issuer.Issue(ctx, "cs_test")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(DefaultTTL + time.Minute) }

	record, err := issuer.Consume(ctx, tok)
	if err != nil {
		t.Fatalf("Consume errored: %v", err)
	}
	if record != nil {
		t.Fatal("Expected nil for expired token even on first consume")
	}
}

func TestConsume_JustBeforeExpiry(t *testing.T) {
	issuer := NewIssuer(storage.NewMemoryStore())
	ctx := context.Background()

	base := time.Now()
	issuer.now = func() time.Time { return base }

	tok, err := issuer.Issue(ctx, "cs_test")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(DefaultTTL - time.Second) }

	record, err := issuer.Consume(ctx, tok)
	if err != nil {
		t.Fatalf("Consume errored: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record while token still valid")
	}
}
