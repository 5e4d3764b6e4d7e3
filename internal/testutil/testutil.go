// Package testutil provides fakes for the external collaborators so
// handler and flow tests run without Stripe, S3 or a mail server.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"tabguard.app/cloud/internal/config"
	"tabguard.app/cloud/internal/payment"
)

// TestConfig returns a config suitable for handler tests.
func TestConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		BaseURL:             "https://tabguard.test",
		Store:               config.StoreMemory,
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_test",
		StripePriceID:       "price_test",
		ProductID:           "tabguard-pro",
		EmailFrom:           "licenses@tabguard.test",
	}
}

// FakePayments implements payment.Verifier and payment.CheckoutStarter
// over a fixed session table.
type FakePayments struct {
	Sessions    map[string]*payment.Session
	CheckoutURL string
	Err         error
}

func (f *FakePayments) Retrieve(ctx context.Context, sessionID string) (*payment.Session, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	session, ok := f.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", sessionID)
	}
	return session, nil
}

func (f *FakePayments) NewCheckoutSession(ctx context.Context, productID string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.CheckoutURL, nil
}

// PaidSession builds a confirmed one-time purchase session.
func PaidSession(id, customerID, email string) *payment.Session {
	return &payment.Session{
		ID:         id,
		Paid:       true,
		CustomerID: customerID,
		Email:      email,
		Name:       "Test Buyer",
	}
}

type FakeSigner struct {
	URL string
	Err error
}

func (f *FakeSigner) SignURL(ctx context.Context) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.URL, nil
}

type SentMail struct {
	To      string
	Subject string
	Body    string
}

type FakeSender struct {
	mu   sync.Mutex
	Err  error
	sent []SentMail
}

func (f *FakeSender) Send(ctx context.Context, to, subject, body string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *FakeSender) Sent() []SentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMail, len(f.sent))
	copy(out, f.sent)
	return out
}
