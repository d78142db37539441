package push

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/models"
	"github.com/noah-isme/gtcollab-api/pkg/config"
)

// ErrDelivery marks a failed push to a single device.
var ErrDelivery = errors.New("push delivery failed")

// Transport delivers one message to one device.
type Transport interface {
	Send(ctx context.Context, device models.Device, title, message string, data models.NotificationData) error
}

// NewTransport selects the transport named in cfg.Provider.
func NewTransport(cfg config.NotificationConfig, logger *zap.Logger) (Transport, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogTransport(logger), nil
	case "fcm":
		if cfg.FCMServerKey == "" {
			return nil, fmt.Errorf("fcm transport requires FCM_SERVER_KEY")
		}
		return NewFCMTransport(cfg.FCMEndpoint, cfg.FCMServerKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}

// LogTransport writes deliveries to the log instead of a push provider.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport constructs a LogTransport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// Send implements Transport.
func (t *LogTransport) Send(_ context.Context, device models.Device, title, message string, data models.NotificationData) error {
	t.logger.Info("push",
		zap.String("user_id", device.UserID),
		zap.String("device_id", device.ID),
		zap.String("title", title),
		zap.String("message", message),
		zap.Any("data", map[string]string(data)),
	)
	return nil
}
