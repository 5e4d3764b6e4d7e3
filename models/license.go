package models

// License statuses follow the payment provider's subscription lifecycle.
// One-time purchases are created directly as active.
const (
	StatusTrialing   = "trialing"
	StatusActive     = "active"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusUnpaid     = "unpaid"
	StatusIncomplete = "incomplete"
)

// License is the durable entitlement state for one customer+product pair.
// There is at most one record per pair; Key is assigned at creation and
// never changes. BoundDevice stays empty until the first verify call and
// is immutable afterwards.
type License struct {
	Key              string
	CustomerID       string
	ProductID        string
	Email            string
	Status           string
	CurrentPeriodEnd int64 // epoch millis, 0 means no expiry (one-time purchase)
	BoundDevice      string
	DeviceLimit      int
	CreatedAt        int64
	UpdatedAt        int64
}

// LicenseRef resolves a license key back to the owning record. It is
// written together with the record and exists iff the record does.
type LicenseRef struct {
	CustomerID string
	ProductID  string
}
