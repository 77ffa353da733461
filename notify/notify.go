// Package notify emits user notifications for order status changes.
package notify

import (
	"context"
	"fmt"
	"time"

	"meal-order-api/live"
	"meal-order-api/metrics"
	"meal-order-api/models"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher hands notification events to an external queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, message []byte) error
	Close() error
}

var messages = map[models.NotificationKind]string{
	models.NotifyOrderStarted:   "Your order has been started!",
	models.NotifyOrderCompleted: "Your order is completed and ready for pickup!",
}

// Event is the message published for every notification.
type Event struct {
	NotificationID uint                    `json:"notification_id"`
	UserID         uint                    `json:"user_id"`
	OrderID        uint                    `json:"order_id"`
	Kind           models.NotificationKind `json:"kind"`
	Message        string                  `json:"message"`
	Timestamp      time.Time               `json:"timestamp"`
}

type Notifier struct {
	db        *gorm.DB
	hub       *live.Hub
	publisher Publisher
	queue     string
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

// New builds a notifier. publisher may be nil.
func New(db *gorm.DB, hub *live.Hub, publisher Publisher, queue string, m *metrics.Metrics, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		db:        db,
		hub:       hub,
		publisher: publisher,
		queue:     queue,
		metrics:   m,
		logger:    logger,
	}
}

// Record stores a notification for the order's owner inside tx. Call
// Deliver with the result once tx has committed.
func (n *Notifier) Record(tx *gorm.DB, order models.Order, kind models.NotificationKind) (models.Notification, error) {
	note := models.Notification{
		UserID:  order.UserID,
		OrderID: order.ID,
		Kind:    kind,
		Message: messages[kind],
	}
	if err := tx.Create(&note).Error; err != nil {
		return note, fmt.Errorf("failed to create notification: %w", err)
	}
	return note, nil
}

// Deliver pushes committed notifications to live subscribers and the
// external queue. Delivery failures are logged; the notification is
// already stored.
func (n *Notifier) Deliver(ctx context.Context, notes ...models.Notification) {
	for _, note := range notes {
		n.metrics.NotificationsSent.WithLabelValues(string(note.Kind)).Inc()
		n.PublishUserNotifications(ctx, note.UserID)

		if n.publisher == nil {
			continue
		}
		body, err := json.Marshal(Event{
			NotificationID: note.ID,
			UserID:         note.UserID,
			OrderID:        note.OrderID,
			Kind:           note.Kind,
			Message:        note.Message,
			Timestamp:      note.CreatedAt,
		})
		if err != nil {
			n.logger.Errorw("failed to marshal notification event", "notification_id", note.ID, "error", err)
			continue
		}
		if err := n.publisher.Publish(ctx, n.queue, body); err != nil {
			n.logger.Errorw("failed to publish notification event", "notification_id", note.ID, "error", err)
			continue
		}
		n.logger.Infow("notification published", "notification_id", note.ID, "user_id", note.UserID, "kind", note.Kind)
	}
}

// PublishUserNotifications sends the user's current notification list to
// live subscribers, if there are any.
func (n *Notifier) PublishUserNotifications(ctx context.Context, userID uint) {
	topic := live.UserNotificationsTopic(userID)
	if !n.hub.HasSubscribers(topic) {
		return
	}
	notes, err := ForUser(ctx, n.db, userID)
	if err != nil {
		n.logger.Errorw("failed to load notifications for live update", "user_id", userID, "error", err)
		return
	}
	n.hub.Publish(topic, notes)
}

// ForUser lists a user's notifications, newest first.
func ForUser(ctx context.Context, db *gorm.DB, userID uint) ([]models.Notification, error) {
	var notes []models.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Find(&notes).Error
	return notes, err
}
