package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"tabguard.app/cloud/internal/license"
	"tabguard.app/cloud/internal/logger"
	"tabguard.app/cloud/internal/payment"
)

// Stripe ingests provider webhook events. Signature verification happens
// before any state mutation; an event that fails it is discarded whole.
func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"method":      r.Method,
	})

	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event := stripe.Event{}
	// Test mode trusts the payload; production replaces it with the
	// signature-verified event below.
	if os.Getenv("TEST_MODE") == "true" {
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Error("Failed to parse webhook JSON", map[string]interface{}{
				"error": err.Error(),
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	} else {
		signatureHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(payload, signatureHeader, s.Config.StripeWebhookSecret)
		if err != nil {
			logger.Error("Webhook signature verification failed", map[string]interface{}{
				"error":     err.Error(),
				"signature": signatureHeader,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	logger.Info("Stripe event parsed", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	switch event.Type {
	case "checkout.session.completed":
		var checkoutSession stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
			logger.Error("Failed to unmarshal checkout session", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		err = s.handleCheckoutCompleted(ctx, &checkoutSession)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			logger.Error("Failed to unmarshal subscription", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		err = s.handleSubscriptionChanged(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			logger.Error("Failed to unmarshal subscription", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		err = s.Licenses.MarkCanceled(ctx, subscriptionCustomerID(&sub), s.productIDFromMetadata(sub.Metadata))

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			logger.Error("Failed to unmarshal invoice", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		customerID := ""
		if invoice.Customer != nil {
			customerID = invoice.Customer.ID
		}
		err = s.Licenses.MarkCanceled(ctx, customerID, s.productIDFromMetadata(invoice.Metadata))

	default:
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
	}

	if err != nil {
		logger.Error("Failed to process webhook event", map[string]interface{}{
			"error":      err.Error(),
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Info("Webhook processed", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"received": "true"}); err != nil {
		logger.Error("Failed to encode webhook response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) handleCheckoutCompleted(ctx context.Context, checkoutSession *stripe.CheckoutSession) error {
	session := payment.FromCheckoutSession(checkoutSession)
	if !session.Paid {
		logger.Warn("Checkout completed event for unpaid session, skipping", map[string]interface{}{
			"session_id":     session.ID,
			"payment_status": checkoutSession.PaymentStatus,
		})
		return nil
	}

	productID := s.productIDFromMetadata(checkoutSession.Metadata)
	params := ensureParamsFromSession(session, productID)

	created, key, err := s.Licenses.Ensure(ctx, params)
	if err != nil {
		return err
	}

	logger.Info("Checkout session processed", map[string]interface{}{
		"session_id":      session.ID,
		"license_created": created,
		"customer_id":     session.CustomerID,
	})

	// Only the first creation mails the key; the thanks page covers the
	// synchronous path and redeliveries should not spam the buyer.
	if created && session.Email != "" {
		s.sendWebhookLicenseEmail(ctx, session, key)
	}
	return nil
}

func (s *Server) handleSubscriptionChanged(ctx context.Context, sub *stripe.Subscription) error {
	_, _, err := s.Licenses.Ensure(ctx, license.EnsureParams{
		CustomerID:       subscriptionCustomerID(sub),
		ProductID:        s.productIDFromMetadata(sub.Metadata),
		Status:           string(sub.Status),
		CurrentPeriodEnd: payment.SubscriptionPeriodEnd(sub),
	})
	return err
}

func subscriptionCustomerID(sub *stripe.Subscription) string {
	if sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

func (s *Server) productIDFromMetadata(metadata map[string]string) string {
	if id := metadata["product_id"]; id != "" {
		return id
	}
	return s.Config.ProductID
}

func (s *Server) sendWebhookLicenseEmail(ctx context.Context, session *payment.Session, key string) {
	body := licenseEmailBody(firstName(session.Name), key, s.Config.BaseURL, session.ID)

	if err := s.Email.Send(ctx, session.Email, "Your TabGuard Pro License Key", body); err != nil {
		logger.Error("Failed to send license email", map[string]interface{}{
			"error":      err.Error(),
			"email":      session.Email,
			"session_id": session.ID,
		})
	}
}
