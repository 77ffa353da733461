package models

import "time"

type NotificationKind string

const (
	NotifyOrderStarted   NotificationKind = "order_started"
	NotifyOrderCompleted NotificationKind = "order_completed"
)

// Notification is a message for one user, emitted on order status changes.
type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	UserID    uint             `json:"user_id" gorm:"not null;index"`
	OrderID   uint             `json:"order_id"`
	Kind      NotificationKind `json:"kind" gorm:"not null"`
	Message   string           `json:"message" gorm:"not null"`
	Read      bool             `json:"read" gorm:"not null;default:false"`
	CreatedAt time.Time        `json:"created_at"`
}
