package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tabguard.app/cloud/models"
)

const (
	licenseKeyPrefix = "license:"
	refKeyPrefix     = "lickey:"
	tokenKeyPrefix   = "token:"
)

// bindScript sets the bound device only when it is still empty and returns
// the device that ended up bound, so concurrent first verifiers cannot
// overwrite each other.
var bindScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return ''
end
local cur = redis.call('HGET', KEYS[1], 'bound_device')
if cur == false or cur == '' then
  redis.call('HSET', KEYS[1], 'bound_device', ARGV[1], 'updated_at', ARGV[2])
  return ARGV[1]
end
return cur
`)

// RedisStore is the production store. Licenses are hashes, the key index
// and tokens are JSON strings; tokens carry a TTL matching their expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) CreateLicense(ctx context.Context, license *models.License) error {
	ref, err := json.Marshal(models.LicenseRef{
		CustomerID: license.CustomerID,
		ProductID:  license.ProductID,
	})
	if err != nil {
		return fmt.Errorf("marshal license ref: %w", err)
	}

	id := licenseKeyPrefix + licenseID(license.CustomerID, license.ProductID)
	exists, err := r.client.Exists(ctx, id).Result()
	if err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	if exists != 0 {
		return fmt.Errorf("license %s/%s already exists", license.CustomerID, license.ProductID)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, id, licenseFields(license))
	pipe.Set(ctx, refKeyPrefix+license.Key, ref, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// UpdateLicense touches only the lifecycle fields. bound_device stays
// whatever BindDevice made it, so a webhook racing a first verify cannot
// wipe the binding with a stale read.
func (r *RedisStore) UpdateLicense(ctx context.Context, license *models.License) error {
	id := licenseKeyPrefix + licenseID(license.CustomerID, license.ProductID)
	exists, err := r.client.Exists(ctx, id).Result()
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("license %s/%s not found", license.CustomerID, license.ProductID)
	}

	err = r.client.HSet(ctx, id,
		"status", license.Status,
		"current_period_end", license.CurrentPeriodEnd,
		"updated_at", license.UpdatedAt,
	).Err()
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	return nil
}

func (r *RedisStore) GetLicense(ctx context.Context, customerID, productID string) (*models.License, error) {
	id := licenseKeyPrefix + licenseID(customerID, productID)
	fields, err := r.client.HGetAll(ctx, id).Result()
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return licenseFromFields(fields)
}

func (r *RedisStore) GetLicenseRef(ctx context.Context, key string) (*models.LicenseRef, error) {
	raw, err := r.client.Get(ctx, refKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license ref: %w", err)
	}

	var ref models.LicenseRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, fmt.Errorf("parse license ref: %w", err)
	}
	return &ref, nil
}

func (r *RedisStore) BindDevice(ctx context.Context, customerID, productID, deviceID string) (string, error) {
	id := licenseKeyPrefix + licenseID(customerID, productID)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	bound, err := bindScript.Run(ctx, r.client, []string{id}, deviceID, now).Text()
	if err != nil {
		return "", fmt.Errorf("bind device: %w", err)
	}
	if bound == "" {
		return "", fmt.Errorf("license %s/%s not found", customerID, productID)
	}
	return bound, nil
}

func (r *RedisStore) SaveToken(ctx context.Context, token string, record *models.Token) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	ttl := time.Until(time.UnixMilli(record.ExpiresAt))
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, tokenKeyPrefix+token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *RedisStore) ConsumeToken(ctx context.Context, token string) (*models.Token, error) {
	raw, err := r.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	var record models.Token
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &record, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func licenseFields(license *models.License) map[string]interface{} {
	return map[string]interface{}{
		"key":                license.Key,
		"customer_id":        license.CustomerID,
		"product_id":         license.ProductID,
		"email":              license.Email,
		"status":             license.Status,
		"current_period_end": license.CurrentPeriodEnd,
		"bound_device":       license.BoundDevice,
		"device_limit":       license.DeviceLimit,
		"created_at":         license.CreatedAt,
		"updated_at":         license.UpdatedAt,
	}
}

func licenseFromFields(fields map[string]string) (*models.License, error) {
	license := &models.License{
		Key:         fields["key"],
		CustomerID:  fields["customer_id"],
		ProductID:   fields["product_id"],
		Email:       fields["email"],
		Status:      fields["status"],
		BoundDevice: fields["bound_device"],
	}

	for name, dst := range map[string]*int64{
		"current_period_end": &license.CurrentPeriodEnd,
		"created_at":         &license.CreatedAt,
		"updated_at":         &license.UpdatedAt,
	} {
		if raw, ok := fields[name]; ok && raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse license field %s: %w", name, err)
			}
			*dst = v
		}
	}

	if raw, ok := fields["device_limit"]; ok && raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse license field device_limit: %w", err)
		}
		license.DeviceLimit = limit
	}

	return license, nil
}
