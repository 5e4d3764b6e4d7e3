// Package payment wraps the Stripe Checkout API behind small interfaces
// so handlers can be exercised with fakes.
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// Session is the normalized view of a checkout session the rest of the
// service works with.
type Session struct {
	ID                 string
	Paid               bool
	CustomerID         string
	Email              string
	Name               string
	SubscriptionStatus string // empty for one-time purchases
	PeriodEnd          int64  // epoch millis, 0 for one-time purchases
}

type Verifier interface {
	Retrieve(ctx context.Context, sessionID string) (*Session, error)
}

type CheckoutStarter interface {
	NewCheckoutSession(ctx context.Context, productID string) (string, error)
}

type Client struct {
	priceID string
	baseURL string
}

func NewClient(secretKey, priceID, baseURL string) *Client {
	stripe.Key = secretKey
	return &Client{priceID: priceID, baseURL: baseURL}
}

func (c *Client) Retrieve(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return FromCheckoutSession(s), nil
}

// NewCheckoutSession creates a hosted checkout page for the installer and
// returns its URL. The success URL lands the buyer on the thanks page
// with their session id.
func (c *Client) NewCheckoutSession(ctx context.Context, productID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.baseURL + "/thanks?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.baseURL + "/"),
		Metadata:   map[string]string{"product_id": productID},
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.URL, nil
}

// FromCheckoutSession normalizes a raw Stripe session. Guest checkouts
// without a customer object fall back to keying by email.
func FromCheckoutSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:   s.ID,
		Paid: paid(s.Status, s.PaymentStatus),
	}

	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CustomerDetails != nil {
		out.Email = s.CustomerDetails.Email
		out.Name = s.CustomerDetails.Name
	}
	if out.Email == "" {
		out.Email = s.CustomerEmail
	}
	if out.CustomerID == "" {
		out.CustomerID = out.Email
	}

	if s.Subscription != nil {
		out.SubscriptionStatus = string(s.Subscription.Status)
		out.PeriodEnd = SubscriptionPeriodEnd(s.Subscription)
	}

	return out
}

func paid(status stripe.CheckoutSessionStatus, paymentStatus stripe.CheckoutSessionPaymentStatus) bool {
	if paymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return true
	}
	return status == stripe.CheckoutSessionStatusComplete &&
		paymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// SubscriptionPeriodEnd returns the subscription's current period end in
// epoch millis, 0 when the subscription carries no items.
func SubscriptionPeriodEnd(sub *stripe.Subscription) int64 {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0
	}
	return sub.Items.Data[0].CurrentPeriodEnd * 1000
}
