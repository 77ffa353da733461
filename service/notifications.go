package service

import (
	"context"
	"errors"

	"meal-order-api/models"
	"meal-order-api/notify"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Notifications struct {
	db       *gorm.DB
	notifier *notify.Notifier
	logger   *zap.SugaredLogger
}

func NewNotifications(db *gorm.DB, notifier *notify.Notifier, logger *zap.SugaredLogger) *Notifications {
	return &Notifications{db: db, notifier: notifier, logger: logger}
}

// List returns the user's notifications, newest first.
func (s *Notifications) List(ctx context.Context, userID uint) ([]models.Notification, error) {
	return notify.ForUser(ctx, s.db, userID)
}

// MarkRead marks one of the user's notifications as read. Only the owner
// may do this.
func (s *Notifications) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var note models.Notification
	err := s.db.WithContext(ctx).First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if note.UserID != userID {
		return nil, ErrForbidden
	}
	if note.Read {
		return &note, nil
	}

	if err := s.db.WithContext(ctx).Model(&note).Update("read", true).Error; err != nil {
		return nil, err
	}
	note.Read = true
	s.notifier.PublishUserNotifications(ctx, userID)
	return &note, nil
}
