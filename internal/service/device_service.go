package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

type deviceRepository interface {
	Upsert(ctx context.Context, device *models.Device) error
}

// DeviceService registers push targets.
type DeviceService struct {
	repo      deviceRepository
	validator *validator.Validate
}

// NewDeviceService constructs the service.
func NewDeviceService(repo deviceRepository, validate *validator.Validate) *DeviceService {
	if validate == nil {
		validate = validator.New()
	}
	return &DeviceService{repo: repo, validator: validate}
}

// Register binds a registration id to userID. Re-registering moves the id to the latest user.
func (s *DeviceService) Register(ctx context.Context, userID string, req dto.RegisterDeviceRequest) (*models.Device, error) {
	req.RegistrationID = strings.TrimSpace(req.RegistrationID)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.Platform == "" {
		req.Platform = "android"
	}
	device := &models.Device{
		UserID:         userID,
		RegistrationID: req.RegistrationID,
		Platform:       req.Platform,
		Active:         true,
	}
	if err := s.repo.Upsert(ctx, device); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register device")
	}
	return device, nil
}
