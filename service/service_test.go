package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"meal-order-api/bag"
	"meal-order-api/config"
	"meal-order-api/live"
	"meal-order-api/metrics"
	"meal-order-api/models"
	"meal-order-api/notify"
	"meal-order-api/objectstore"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	hub           *live.Hub
	bagStore      bag.Store
	objects       *objectstore.LocalStore
	catalog       *Catalog
	bags          *Bags
	orders        *Orders
	accounts      *Accounts
	notifications *Notifications
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := config.OpenDB(":memory:")
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	hub := live.NewHub()
	t.Cleanup(hub.Close)
	m := metrics.New()
	notifier := notify.New(db, hub, nil, "test", m, logger)

	objects, err := objectstore.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	bagStore := bag.NewDBStore(db)
	catalog := NewCatalog(db, objects, hub, logger)
	return &testEnv{
		db:            db,
		hub:           hub,
		bagStore:      bagStore,
		objects:       objects,
		catalog:       catalog,
		bags:          NewBags(bagStore, catalog, m, logger),
		orders:        NewOrders(db, notifier, hub, m, logger),
		accounts:      NewAccounts(db, bagStore, 5*time.Minute, logger),
		notifications: NewNotifications(db, notifier, logger),
	}
}

var userSeq int

func (e *testEnv) user(t *testing.T, name string) models.User {
	t.Helper()
	userSeq++
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{
		Name:         name,
		Email:        fmt.Sprintf("user%d@example.com", userSeq),
		PasswordHash: string(hash),
	}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

// breakfastPlate creates a published meal with components eggs and toast
// and add-ons bacon and avocado.
func (e *testEnv) breakfastPlate(t *testing.T) *models.MenuItem {
	t.Helper()
	item, err := e.catalog.CreateItem(context.Background(), ItemInput{
		Name:       "Breakfast plate",
		Category:   models.CategoryMeal,
		Components: []string{"eggs", "toast"},
		AddOns:     []string{"bacon", "avocado"},
		MealTime:   models.Breakfast,
	})
	require.NoError(t, err)
	return item
}

// placeBreakfast puts eggs x2, toast x1 and one bacon in the user's bag and
// submits it.
func (e *testEnv) placeBreakfast(t *testing.T, user models.User) *models.Order {
	t.Helper()
	ctx := context.Background()
	item := e.breakfastPlate(t)

	b, err := e.bags.AddItem(ctx, user.ID, item.ID, bag.Choice{
		Quantities: map[string]int{"eggs": 2, "toast": 1},
		AddOns:     map[string]int{"bacon": 1},
	})
	require.NoError(t, err)

	order, placed, err := e.orders.Submit(ctx, user, b)
	require.NoError(t, err)
	require.True(t, placed)
	return order
}

func (e *testEnv) notificationsFor(t *testing.T, userID uint, kind models.NotificationKind) int {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Notification{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Count(&n).Error)
	return int(n)
}

func boolPtr(v bool) *bool { return &v }
