package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	deviceKeyPrefix = "rx_live_"
	keyLength       = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// DeviceKey is a stored per-device bearer key (without the plaintext secret).
type DeviceKey struct {
	ID         string
	DeviceName string
	KeyPrefix  string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// CreateDeviceKey issues a key for a pharmacy device.
// Returns the plaintext key (shown once) and the stored record.
func (db *ServerDB) CreateDeviceKey(deviceName string, expiresAt *time.Time) (string, *DeviceKey, error) {
	if deviceName == "" {
		return "", nil, fmt.Errorf("device name is required")
	}

	id, err := generateID("dk_")
	if err != nil {
		return "", nil, fmt.Errorf("generate device key id: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := deviceKeyPrefix + string(secret)
	prefix := string(secret[:8])
	hash := sha256.Sum256([]byte(plaintext))

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO device_keys (id, device_name, key_hash, key_prefix, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, deviceName, hex.EncodeToString(hash[:]), prefix, expiresAt, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert device key: %w", err)
	}

	return plaintext, &DeviceKey{
		ID:         id,
		DeviceName: deviceName,
		KeyPrefix:  prefix,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}, nil
}

// VerifyDeviceKey checks a plaintext key against stored hashes. It returns
// nil (and no error) for unknown or expired keys.
func (db *ServerDB) VerifyDeviceKey(plaintextKey string) (*DeviceKey, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	dk := &DeviceKey{}
	err := db.conn.QueryRow(`
		SELECT id, device_name, key_prefix, expires_at, last_used_at, created_at
		FROM device_keys WHERE key_hash = ?
	`, keyHash).Scan(&dk.ID, &dk.DeviceName, &dk.KeyPrefix, &dk.ExpiresAt, &dk.LastUsedAt, &dk.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("device key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify device key: %w", err)
	}

	if dk.ExpiresAt != nil && dk.ExpiresAt.Before(time.Now().UTC()) {
		slog.Debug("device key expired", "key_id", dk.ID, "expires_at", dk.ExpiresAt)
		return nil, nil
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE device_keys SET last_used_at = ? WHERE id = ?`, now, dk.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", dk.ID, "err", err)
	}
	dk.LastUsedAt = &now
	return dk, nil
}

// RevokeDeviceKey deletes a device key.
func (db *ServerDB) RevokeDeviceKey(keyID string) error {
	res, err := db.conn.Exec(`DELETE FROM device_keys WHERE id = ?`, keyID)
	if err != nil {
		return fmt.Errorf("revoke device key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: device key %s", ErrNotFound, keyID)
	}
	return nil
}

// ListDeviceKeys returns all device keys (without secrets).
func (db *ServerDB) ListDeviceKeys() ([]*DeviceKey, error) {
	rows, err := db.conn.Query(
		`SELECT id, device_name, key_prefix, expires_at, last_used_at, created_at FROM device_keys ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list device keys: %w", err)
	}
	defer rows.Close()

	var keys []*DeviceKey
	for rows.Next() {
		dk := &DeviceKey{}
		if err := rows.Scan(&dk.ID, &dk.DeviceName, &dk.KeyPrefix, &dk.ExpiresAt, &dk.LastUsedAt, &dk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device key: %w", err)
		}
		keys = append(keys, dk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list device keys: iterate: %w", err)
	}
	return keys, nil
}
