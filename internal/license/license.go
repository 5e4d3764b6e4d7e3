// Package license holds the entitlement core: the registry keeping one
// license record per customer+product pair, and the device-binding
// verifier deciding whether a license+device pair may use the product.
package license

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tabguard.app/cloud/internal/logger"
	"tabguard.app/cloud/models"
	"tabguard.app/cloud/storage"
)

type Registry struct {
	store storage.Store
	now   func() time.Time
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
	}
}

type EnsureParams struct {
	CustomerID       string
	Email            string
	ProductID        string
	Status           string
	CurrentPeriodEnd int64
}

// Ensure creates or updates the license for (customer, product). It is
// called both right after checkout and from webhook delivery, possibly
// redelivered or out of order, so it must stay safe under repeats: the
// key, email and device binding of an existing record are never touched,
// only status, period end and updated-at move. UpdateLicense writes just
// those fields, so a delivery racing a first verify cannot erase the
// fresh device binding. A zero period end keeps the previous value.
//
// There is no event-version guard; a redelivered stale status can
// overwrite a newer one. Known gap, surfaced in ops docs rather than
// silently papered over here.
func (r *Registry) Ensure(ctx context.Context, p EnsureParams) (created bool, key string, err error) {
	if p.CustomerID == "" || p.ProductID == "" {
		return false, "", fmt.Errorf("customer id and product id are required")
	}

	existing, err := r.store.GetLicense(ctx, p.CustomerID, p.ProductID)
	if err != nil {
		return false, "", fmt.Errorf("load license: %w", err)
	}

	nowMillis := r.now().UnixMilli()

	if existing != nil {
		existing.Status = p.Status
		if p.CurrentPeriodEnd != 0 {
			existing.CurrentPeriodEnd = p.CurrentPeriodEnd
		}
		existing.UpdatedAt = nowMillis

		if err := r.store.UpdateLicense(ctx, existing); err != nil {
			return false, "", fmt.Errorf("update license: %w", err)
		}
		return false, existing.Key, nil
	}

	license := &models.License{
		Key:              NewKey(),
		CustomerID:       p.CustomerID,
		ProductID:        p.ProductID,
		Email:            p.Email,
		Status:           p.Status,
		CurrentPeriodEnd: p.CurrentPeriodEnd,
		BoundDevice:      "",
		DeviceLimit:      1,
		CreatedAt:        nowMillis,
		UpdatedAt:        nowMillis,
	}

	if err := r.store.CreateLicense(ctx, license); err != nil {
		return false, "", fmt.Errorf("create license: %w", err)
	}

	logger.Info("License created", map[string]interface{}{
		"license_key": license.Key,
		"customer_id": p.CustomerID,
		"product_id":  p.ProductID,
	})

	return true, license.Key, nil
}

// ByKey resolves a license key through the index. A dangling index entry,
// a missing record and a product mismatch all read as not found.
func (r *Registry) ByKey(ctx context.Context, key, productID string) (*models.License, error) {
	ref, err := r.store.GetLicenseRef(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve license key: %w", err)
	}
	if ref == nil {
		return nil, nil
	}
	if productID != "" && ref.ProductID != productID {
		return nil, nil
	}

	license, err := r.store.GetLicense(ctx, ref.CustomerID, ref.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load license: %w", err)
	}
	return license, nil
}

// MarkCanceled flips an existing record to canceled. No record, no-op.
func (r *Registry) MarkCanceled(ctx context.Context, customerID, productID string) error {
	license, err := r.store.GetLicense(ctx, customerID, productID)
	if err != nil {
		return fmt.Errorf("load license: %w", err)
	}
	if license == nil {
		return nil
	}

	license.Status = models.StatusCanceled
	license.UpdatedAt = r.now().UnixMilli()

	if err := r.store.UpdateLicense(ctx, license); err != nil {
		return fmt.Errorf("cancel license: %w", err)
	}

	logger.Info("License canceled", map[string]interface{}{
		"customer_id": customerID,
		"product_id":  productID,
	})
	return nil
}

// NewKey generates a short, human-transcribable license key. Collisions
// are treated as negligibly improbable and not checked.
func NewKey() string {
	return fmt.Sprintf("TGP-%s", strings.ToUpper(uuid.Must(uuid.NewRandom()).String()[:8]))
}
