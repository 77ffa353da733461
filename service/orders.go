package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal-order-api/bag"
	"meal-order-api/live"
	"meal-order-api/metrics"
	"meal-order-api/models"
	"meal-order-api/notify"
	"meal-order-api/statemachine"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Orders struct {
	db       *gorm.DB
	notifier *notify.Notifier
	hub      *live.Hub
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewOrders(
	db *gorm.DB,
	notifier *notify.Notifier,
	hub *live.Hub,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
) *Orders {
	return &Orders{
		db:       db,
		notifier: notifier,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit turns the bag into a pending order and removes the placed lines
// from the bag. An empty bag places nothing and returns placed == false
// without an error. If the order cannot be stored the bag is left untouched.
func (s *Orders) Submit(ctx context.Context, user models.User, b *bag.Bag) (order *models.Order, placed bool, err error) {
	lines := b.Lines()
	if len(lines) == 0 {
		return nil, false, nil
	}

	items := make([]models.OrderItem, len(lines))
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			return nil, false, fmt.Errorf("item %d: %w", i+1, err)
		}
		items[i] = models.NewOrderItem(line)
	}

	o := models.Order{
		UserID:   user.ID,
		UserName: user.Name,
		Items:    items,
		Status:   models.StatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&o).Error; err != nil {
			return err
		}
		return tx.Create(&models.StatusHistory{
			OrderID:   o.ID,
			ToStatus:  models.StatusPending,
			ChangedBy: user.ID,
			Note:      "order placed",
		}).Error
	})
	if err != nil {
		s.logger.Errorw("failed to place order", "user_id", user.ID, "error", err)
		return nil, false, fmt.Errorf("failed to place order: %w", err)
	}

	s.metrics.OrdersPlaced.Inc()
	s.logger.Infow("order placed", "order_id", o.ID, "user_id", user.ID, "items", len(items))

	if err := b.Take(ctx, lines); err != nil {
		s.logger.Errorw("order placed but bag not cleared", "order_id", o.ID, "user_id", user.ID, "error", err)
	}

	s.publish(ctx, o.UserID)
	return &o, true, nil
}

// Get returns an order with its status history.
func (s *Orders) Get(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetForUser returns an order only if userID owns it.
func (s *Orders) GetForUser(ctx context.Context, id, userID uint) (*models.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Orders) ListForUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Find(&orders).Error
	return orders, err
}

// ListAll returns every order, newest first, optionally filtered by status.
func (s *Orders) ListAll(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	query := s.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at desc").Order("id desc").Find(&orders).Error
	return orders, err
}

// Start moves a pending order to started and tells the owner.
func (s *Orders) Start(ctx context.Context, id, adminID uint) (*models.Order, error) {
	return s.update(ctx, id, adminID, func(o *models.Order) (change, error) {
		if o.Status != models.StatusPending {
			return change{}, invalidTransition(o.Status, models.StatusStarted, statemachine.ActorAdmin)
		}
		now := s.now()
		o.Status = models.StatusStarted
		o.StartedAt = &now
		return change{actor: statemachine.ActorAdmin, notify: models.NotifyOrderStarted}, nil
	})
}

// PrepTarget names which flag of an order item a PrepUpdate changes.
type PrepTarget string

const (
	PrepComponent PrepTarget = "component"
	PrepBeverage  PrepTarget = "beverage"
	PrepAddOn     PrepTarget = "add_on"
)

// PrepUpdate sets one preparation flag. A nil Value toggles it.
type PrepUpdate struct {
	ItemIndex int
	Target    PrepTarget
	Name      string
	Value     *bool
}

// SetPreparation changes one cooked/prepared flag and re-derives the
// order status from all flags.
func (s *Orders) SetPreparation(ctx context.Context, id, adminID uint, u PrepUpdate) (*models.Order, error) {
	return s.update(ctx, id, adminID, func(o *models.Order) (change, error) {
		if u.ItemIndex < 0 || u.ItemIndex >= len(o.Items) {
			return change{}, models.NewValidationError("order item index out of range")
		}
		item := &o.Items[u.ItemIndex]

		flip := func(cur bool) bool {
			if u.Value != nil {
				return *u.Value
			}
			return !cur
		}

		switch u.Target {
		case PrepComponent:
			if item.Meal == nil {
				return change{}, models.NewValidationError("beverage items have no components")
			}
			cur, ok := item.Meal.Cooked[u.Name]
			if !ok {
				return change{}, models.NewValidationError(fmt.Sprintf("%q is not a component of this item", u.Name))
			}
			item.Meal.Cooked[u.Name] = flip(cur)
		case PrepBeverage:
			if item.Beverage == nil {
				return change{}, models.NewValidationError("meal items are cooked per component")
			}
			item.Beverage.Cooked = flip(item.Beverage.Cooked)
		case PrepAddOn:
			cur, ok := item.AddOnsPrepared[u.Name]
			if !ok {
				return change{}, models.NewValidationError(fmt.Sprintf("%q is not an add-on of this item", u.Name))
			}
			item.AddOnsPrepared[u.Name] = flip(cur)
		default:
			return change{}, models.NewValidationError(fmt.Sprintf("unknown preparation target %q", u.Target))
		}

		next := statemachine.Recompute(o.Items, o.StartedAt != nil)
		ch := change{actor: statemachine.ActorKitchen}
		if next == models.StatusCompleted && o.Status != models.StatusCompleted {
			now := s.now()
			o.CompletedAt = &now
			ch.notify = models.NotifyOrderCompleted
		}
		if next != models.StatusCompleted {
			o.CompletedAt = nil
		}
		o.Status = next
		return ch, nil
	})
}

// SetCompleted is the completed checkbox. Checking it marks every flag
// prepared and completes the order. Unchecking a completed order sends it
// back to pending and ends the started cycle; preparation flags are kept.
func (s *Orders) SetCompleted(ctx context.Context, id, adminID uint, completed bool) (*models.Order, error) {
	return s.update(ctx, id, adminID, func(o *models.Order) (change, error) {
		if completed {
			if o.Status == models.StatusCompleted {
				return change{noop: true}, nil
			}
			for i := range o.Items {
				o.Items[i].MarkAllPrepared()
			}
			now := s.now()
			o.Status = models.StatusCompleted
			o.CompletedAt = &now
			return change{actor: statemachine.ActorAdmin, notify: models.NotifyOrderCompleted}, nil
		}

		if o.Status != models.StatusCompleted {
			return change{noop: true}, nil
		}
		o.Status = models.StatusPending
		o.StartedAt = nil
		o.CompletedAt = nil
		return change{actor: statemachine.ActorAdmin}, nil
	})
}

// Delete removes an order and its history for good.
func (s *Orders) Delete(ctx context.Context, id uint) error {
	var o models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.StatusHistory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&o).Error
	})
	if err != nil {
		return err
	}

	s.logger.Infow("order deleted", "order_id", id, "user_id", o.UserID)
	s.publish(ctx, o.UserID)
	return nil
}

// change describes what an update did to an order.
type change struct {
	actor  string
	notify models.NotificationKind
	noop   bool
}

// update loads an order, applies fn and stores the result, the status
// history entry and any notification in one transaction. When fn or the
// write fails nothing is stored.
func (s *Orders) update(ctx context.Context, id, adminID uint, fn func(*models.Order) (change, error)) (*models.Order, error) {
	var (
		o     models.Order
		prev  models.OrderStatus
		ch    change
		notes []models.Notification
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		prev = o.Status

		var err error
		if ch, err = fn(&o); err != nil {
			return err
		}
		if ch.noop {
			return nil
		}

		if o.Status != prev {
			if err := statemachine.CanTransition(prev, o.Status, ch.actor); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
			}
			if err := tx.Create(&models.StatusHistory{
				OrderID:    o.ID,
				FromStatus: prev,
				ToStatus:   o.Status,
				ChangedBy:  adminID,
				Note:       statemachine.NoteFor(prev, o.Status, ch.actor),
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&o).
			Select("Items", "Status", "StartedAt", "CompletedAt", "UpdatedAt").
			Updates(&o).Error; err != nil {
			return err
		}

		if ch.notify != "" {
			note, err := s.notifier.Record(tx, o, ch.notify)
			if err != nil {
				return err
			}
			notes = append(notes, note)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidTransition) && !models.IsValidation(err) {
			s.logger.Errorw("failed to update order", "order_id", id, "error", err)
		}
		return nil, err
	}
	if ch.noop {
		return &o, nil
	}

	if o.Status != prev {
		s.metrics.OrderTransitions.WithLabelValues(string(prev), string(o.Status), ch.actor).Inc()
		if o.Status == models.StatusCompleted {
			s.metrics.OrderCompletion.Observe(s.now().Sub(o.CreatedAt).Seconds())
		}
		s.logger.Infow("order status changed", "order_id", o.ID, "from", prev, "to", o.Status, "actor", ch.actor)
	}
	s.notifier.Deliver(ctx, notes...)
	s.publish(ctx, o.UserID)
	return &o, nil
}

func invalidTransition(from, to models.OrderStatus, actor string) error {
	if err := statemachine.CanTransition(from, to, actor); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return ErrInvalidTransition
}

// publish pushes fresh order lists to the owner's and the admins' live
// subscribers.
func (s *Orders) publish(ctx context.Context, userID uint) {
	if topic := live.UserOrdersTopic(userID); s.hub.HasSubscribers(topic) {
		if orders, err := s.ListForUser(ctx, userID); err != nil {
			s.logger.Errorw("failed to load orders for live update", "user_id", userID, "error", err)
		} else {
			s.hub.Publish(topic, orders)
		}
	}
	if s.hub.HasSubscribers(live.AdminOrdersTopic) {
		if orders, err := s.ListAll(ctx, ""); err != nil {
			s.logger.Errorw("failed to load orders for live update", "error", err)
		} else {
			s.hub.Publish(live.AdminOrdersTopic, orders)
		}
	}
}
