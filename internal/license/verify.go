package license

import (
	"context"
	"time"

	"tabguard.app/cloud/models"
)

// GraceWindow tolerates clock skew and webhook latency around a
// subscription's period end.
const GraceWindow = 5 * time.Minute

// Statuses returned by Verify in place of a license status when the
// request never reaches an entitlement decision.
const (
	ResultNotFound    = "not_found"
	ResultDeviceLimit = "device_limit"
)

type VerifyResult struct {
	Active     bool   `json:"active"`
	Status     string `json:"status"`
	ValidUntil int64  `json:"valid_until"`
}

// Verify is the single place license status, device binding and expiry
// combine into an authorization decision.
//
// An unbound license binds to the first device that verifies, through the
// store's atomic set-if-empty, and stays bound to it; any other device is
// rejected with device_limit from then on. There is no unbind path.
// Entitlement requires a good status (active or trialing) and, for
// subscriptions, a period end no further than GraceWindow in the past.
func (r *Registry) Verify(ctx context.Context, key, deviceID, productID string) (*VerifyResult, error) {
	license, err := r.ByKey(ctx, key, productID)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return &VerifyResult{Active: false, Status: ResultNotFound}, nil
	}

	bound := license.BoundDevice
	if bound == "" {
		bound, err = r.store.BindDevice(ctx, license.CustomerID, license.ProductID, deviceID)
		if err != nil {
			return nil, err
		}
	}
	if bound != deviceID {
		return &VerifyResult{Active: false, Status: ResultDeviceLimit}, nil
	}

	return &VerifyResult{
		Active:     r.entitled(license),
		Status:     license.Status,
		ValidUntil: license.CurrentPeriodEnd,
	}, nil
}

func (r *Registry) entitled(license *models.License) bool {
	switch license.Status {
	case models.StatusActive, models.StatusTrialing:
	default:
		return false
	}

	if license.CurrentPeriodEnd == 0 {
		return true
	}
	return r.now().UnixMilli() <= license.CurrentPeriodEnd+GraceWindow.Milliseconds()
}
