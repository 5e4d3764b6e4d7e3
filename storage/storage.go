package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tabguard.app/cloud/models"
)

// Store is the persistence boundary for licenses and download tokens.
// Lookups return (nil, nil) when the record does not exist.
//
// ConsumeToken must be an atomic read-and-delete: for any token at most one
// caller ever receives the record, concurrent callers included. BindDevice
// must be an atomic set-if-empty on the record's bound device and returns
// the device that won, so two racing first verifiers resolve to a single
// binding.
type Store interface {
	// CreateLicense writes a new record and its key index entry together.
	// An existing record for the same pair is an error, never overwritten.
	CreateLicense(ctx context.Context, license *models.License) error
	// UpdateLicense writes the lifecycle fields (status, current period
	// end, updated at) of an existing record. Key, email and the device
	// binding are never written here; the binding only moves through
	// BindDevice, so a stale read can't erase a concurrent bind.
	UpdateLicense(ctx context.Context, license *models.License) error
	GetLicense(ctx context.Context, customerID, productID string) (*models.License, error)
	GetLicenseRef(ctx context.Context, key string) (*models.LicenseRef, error)
	BindDevice(ctx context.Context, customerID, productID, deviceID string) (string, error)

	SaveToken(ctx context.Context, token string, record *models.Token) error
	ConsumeToken(ctx context.Context, token string) (*models.Token, error)

	Close() error
}

// MemoryStore keeps everything in process memory. Used for tests and
// single-instance development.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]models.License
	refs     map[string]models.LicenseRef
	tokens   map[string]models.Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]models.License),
		refs:     make(map[string]models.LicenseRef),
		tokens:   make(map[string]models.Token),
	}
}

func licenseID(customerID, productID string) string {
	return customerID + "/" + productID
}

func (m *MemoryStore) CreateLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := licenseID(license.CustomerID, license.ProductID)
	if _, exists := m.licenses[id]; exists {
		return fmt.Errorf("license %s already exists", id)
	}
	m.licenses[id] = *license
	m.refs[license.Key] = models.LicenseRef{
		CustomerID: license.CustomerID,
		ProductID:  license.ProductID,
	}
	return nil
}

func (m *MemoryStore) UpdateLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := licenseID(license.CustomerID, license.ProductID)
	existing, exists := m.licenses[id]
	if !exists {
		return fmt.Errorf("license %s not found", id)
	}
	existing.Status = license.Status
	existing.CurrentPeriodEnd = license.CurrentPeriodEnd
	existing.UpdatedAt = license.UpdatedAt
	m.licenses[id] = existing
	return nil
}

func (m *MemoryStore) GetLicense(ctx context.Context, customerID, productID string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[licenseID(customerID, productID)]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStore) GetLicenseRef(ctx context.Context, key string) (*models.LicenseRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, exists := m.refs[key]
	if !exists {
		return nil, nil
	}
	return &ref, nil
}

func (m *MemoryStore) BindDevice(ctx context.Context, customerID, productID, deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := licenseID(customerID, productID)
	license, exists := m.licenses[id]
	if !exists {
		return "", fmt.Errorf("license %s not found", id)
	}
	if license.BoundDevice != "" {
		return license.BoundDevice, nil
	}
	license.BoundDevice = deviceID
	license.UpdatedAt = time.Now().UnixMilli()
	m.licenses[id] = license
	return deviceID, nil
}

func (m *MemoryStore) SaveToken(ctx context.Context, token string, record *models.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[token] = *record
	return nil
}

func (m *MemoryStore) ConsumeToken(ctx context.Context, token string) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.tokens[token]
	if !exists {
		return nil, nil
	}
	delete(m.tokens, token)
	return &record, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
