package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// DeviceRepository stores push registrations.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository constructs the repository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert registers the device, moving an existing registration id to its new owner.
func (r *DeviceRepository) Upsert(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	device.Active = true
	device.UpdatedAt = now
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	const query = `INSERT INTO devices (id, user_id, registration_id, platform, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $6)
ON CONFLICT (registration_id) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, active = TRUE, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, query, device.ID, device.UserID, device.RegistrationID, device.Platform, device.CreatedAt, device.UpdatedAt).
		Scan(&device.ID, &device.CreatedAt); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// ListActiveByUsers returns the active devices of every user in userIDs.
func (r *DeviceRepository) ListActiveByUsers(ctx context.Context, userIDs []string) ([]models.Device, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, user_id, registration_id, platform, active, created_at, updated_at
FROM devices WHERE user_id = ANY($1) AND active = TRUE ORDER BY user_id, created_at`
	var devices []models.Device
	if err := r.db.SelectContext(ctx, &devices, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
