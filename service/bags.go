package service

import (
	"context"
	"fmt"

	"meal-order-api/bag"
	"meal-order-api/metrics"
	"meal-order-api/models"

	"go.uber.org/zap"
)

// BagKey is the storage key of a user's bag.
func BagKey(userID uint) string {
	return fmt.Sprintf("user-%d", userID)
}

// Bags opens users' bags and builds lines against the catalog.
type Bags struct {
	store   bag.Store
	catalog *Catalog
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

func NewBags(store bag.Store, catalog *Catalog, m *metrics.Metrics, logger *zap.SugaredLogger) *Bags {
	return &Bags{store: store, catalog: catalog, metrics: m, logger: logger}
}

func (s *Bags) Open(ctx context.Context, userID uint) (*bag.Bag, error) {
	return bag.Open(ctx, s.store, BagKey(userID), s.logger)
}

// AddItem customizes a published item and appends it to the user's bag.
func (s *Bags) AddItem(ctx context.Context, userID, itemID uint, choice bag.Choice) (*bag.Bag, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	slot, published, err := s.catalog.Published(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !published {
		return nil, models.NewValidationError(fmt.Sprintf("%s is not on today's menu", item.Name))
	}
	if choice.MealTime == "" {
		choice.MealTime = slot
	}

	condiments, err := s.catalog.Condiments(ctx)
	if err != nil {
		return nil, err
	}
	line, err := bag.NewLine(*item, condiments, choice)
	if err != nil {
		return nil, err
	}

	b, err := s.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := b.Add(ctx, line); err != nil {
		return nil, err
	}
	s.Mutated("add")
	return b, nil
}

// Mutated records a successful bag change.
func (s *Bags) Mutated(op string) {
	s.metrics.BagMutations.WithLabelValues(op).Inc()
}
