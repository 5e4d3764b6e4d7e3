package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tabguard.app/cloud/models"
)

// SQLiteStore is a single-node durable store. Transactions give the
// atomic token consume and conditional device bind the Store contract
// requires.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers; concurrent consume/bind
	// transactions would otherwise trip SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
      CREATE TABLE IF NOT EXISTS licenses (
          customer_id TEXT NOT NULL,
          product_id TEXT NOT NULL,
          license_key TEXT UNIQUE NOT NULL,
          email TEXT NOT NULL DEFAULT '',
          status TEXT NOT NULL,
          current_period_end INTEGER NOT NULL DEFAULT 0,
          bound_device TEXT NOT NULL DEFAULT '',
          device_limit INTEGER NOT NULL DEFAULT 1,
          created_at INTEGER NOT NULL,
          updated_at INTEGER NOT NULL,
          PRIMARY KEY (customer_id, product_id)
      );

      CREATE TABLE IF NOT EXISTS license_index (
          license_key TEXT PRIMARY KEY,
          customer_id TEXT NOT NULL,
          product_id TEXT NOT NULL
      );

      CREATE TABLE IF NOT EXISTS tokens (
          token TEXT PRIMARY KEY,
          session_id TEXT NOT NULL,
          expires_at INTEGER NOT NULL
      );
      `

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) CreateLicense(ctx context.Context, license *models.License) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create license: %w", err)
	}
	defer tx.Rollback()

	// Plain INSERTs: re-creating an existing pair is a contract
	// violation and must fail loudly, not leave a dangling index row.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO licenses
		(customer_id, product_id, license_key, email, status, current_period_end, bound_device, device_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		license.CustomerID,
		license.ProductID,
		license.Key,
		license.Email,
		license.Status,
		license.CurrentPeriodEnd,
		license.BoundDevice,
		license.DeviceLimit,
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO license_index (license_key, customer_id, product_id) VALUES (?, ?, ?)`,
		license.Key, license.CustomerID, license.ProductID,
	)
	if err != nil {
		return fmt.Errorf("failed to save license index: %w", err)
	}

	return tx.Commit()
}

// UpdateLicense writes the lifecycle columns only; bound_device is owned
// by BindDevice and never appears in this statement.
func (s *SQLiteStore) UpdateLicense(ctx context.Context, license *models.License) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET status = ?, current_period_end = ?, updated_at = ?
		WHERE customer_id = ? AND product_id = ?`,
		license.Status,
		license.CurrentPeriodEnd,
		license.UpdatedAt,
		license.CustomerID,
		license.ProductID,
	)
	if err != nil {
		return fmt.Errorf("failed to update license: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update license: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("license %s/%s not found", license.CustomerID, license.ProductID)
	}
	return nil
}

func (s *SQLiteStore) GetLicense(ctx context.Context, customerID, productID string) (*models.License, error) {
	query := `SELECT customer_id, product_id, license_key, email, status, current_period_end, bound_device, device_limit, created_at, updated_at
	FROM licenses WHERE customer_id = ? AND product_id = ?`

	var license models.License
	err := s.db.QueryRowContext(ctx, query, customerID, productID).Scan(
		&license.CustomerID,
		&license.ProductID,
		&license.Key,
		&license.Email,
		&license.Status,
		&license.CurrentPeriodEnd,
		&license.BoundDevice,
		&license.DeviceLimit,
		&license.CreatedAt,
		&license.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &license, nil
}

func (s *SQLiteStore) GetLicenseRef(ctx context.Context, key string) (*models.LicenseRef, error) {
	query := `SELECT customer_id, product_id FROM license_index WHERE license_key = ?`

	var ref models.LicenseRef
	err := s.db.QueryRowContext(ctx, query, key).Scan(&ref.CustomerID, &ref.ProductID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &ref, nil
}

func (s *SQLiteStore) BindDevice(ctx context.Context, customerID, productID, deviceID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin bind device: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE licenses SET bound_device = ?, updated_at = ? WHERE customer_id = ? AND product_id = ? AND bound_device = ''`,
		deviceID, time.Now().UnixMilli(), customerID, productID,
	)
	if err != nil {
		return "", fmt.Errorf("bind device: %w", err)
	}

	var bound string
	err = tx.QueryRowContext(ctx,
		`SELECT bound_device FROM licenses WHERE customer_id = ? AND product_id = ?`,
		customerID, productID,
	).Scan(&bound)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("license %s/%s not found", customerID, productID)
	}
	if err != nil {
		return "", fmt.Errorf("bind device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("bind device: %w", err)
	}
	return bound, nil
}

func (s *SQLiteStore) SaveToken(ctx context.Context, token string, record *models.Token) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tokens (token, session_id, expires_at) VALUES (?, ?, ?)`,
		token, record.SessionID, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ConsumeToken(ctx context.Context, token string) (*models.Token, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume token: %w", err)
	}
	defer tx.Rollback()

	var record models.Token
	err = tx.QueryRowContext(ctx,
		`SELECT session_id, expires_at FROM tokens WHERE token = ?`, token,
	).Scan(&record.SessionID, &record.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, token); err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	return &record, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
