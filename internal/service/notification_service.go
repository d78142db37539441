package service

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	"github.com/noah-isme/gtcollab-api/internal/push"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
	"github.com/noah-isme/gtcollab-api/pkg/logger"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type notificationRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) error
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

type deviceLister interface {
	ListActiveByUsers(ctx context.Context, userIDs []string) ([]models.Device, error)
}

// NotificationService persists notifications and fans them out to every recipient device.
type NotificationService struct {
	notifications notificationRepository
	devices       deviceLister
	transport     push.Transport
	metrics       *MetricsService
	logger        *zap.Logger
	concurrency   int
	timeout       time.Duration
	now           func() time.Time
}

// NewNotificationService constructs the fanout service.
func NewNotificationService(notifications notificationRepository, devices deviceLister, transport push.Transport, metrics *MetricsService, concurrency int, timeout time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if transport == nil {
		transport = push.NewLogTransport(logger)
	}
	return &NotificationService{
		notifications: notifications,
		devices:       devices,
		transport:     transport,
		metrics:       metrics,
		logger:        logger,
		concurrency:   concurrency,
		timeout:       timeout,
		now:           time.Now,
	}
}

// Notify stores n and then broadcasts it. Delivery failures are reported, never returned.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) (*dto.DeliveryReport, error) {
	if n == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notification is required")
	}
	if !n.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification kind")
	}
	n.Recipients = uniqueNonEmpty(n.Recipients)
	if len(n.Recipients) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notification needs at least one recipient")
	}
	if n.Data == nil {
		n.Data = models.BuildPayload(n.Kind, models.PayloadFields{})
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	if err := s.notifications.Create(ctx, nil, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}

	report := s.Broadcast(ctx, n)
	return &report, nil
}

// Broadcast attempts every active device of every recipient independently.
func (s *NotificationService) Broadcast(ctx context.Context, n *models.Notification) dto.DeliveryReport {
	log := logger.ForContext(ctx, s.logger).With(zap.String("notification_id", n.ID), zap.String("kind", string(n.Kind)))
	report := dto.DeliveryReport{Recipients: len(n.Recipients)}

	devices, err := s.devices.ListActiveByUsers(ctx, n.Recipients)
	if err != nil {
		log.Warn("failed to load recipient devices", zap.Error(err))
		return report
	}
	report.Devices = len(devices)

	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			sendCtx := ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			if err := s.transport.Send(sendCtx, device, n.Title, n.Message, n.Data); err != nil {
				failed.Add(1)
				s.metrics.RecordPushDelivery(false)
				log.Warn("push delivery failed",
					zap.String("user_id", device.UserID),
					zap.String("device_id", device.ID),
					zap.Error(err),
				)
				return nil
			}
			delivered.Add(1)
			s.metrics.RecordPushDelivery(true)
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	log.Info("notification broadcast",
		zap.Int("recipients", report.Recipients),
		zap.Int("devices", report.Devices),
		zap.Int("failed", report.Failed),
	)
	return report
}

// MarkRead records that userID has seen the notification. Only recipients may mark it.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := s.notifications.MarkRead(ctx, notificationID, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotRecipient
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// ListForUser returns the newest notifications addressed to userID.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	items, err := s.notifications.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
