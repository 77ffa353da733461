package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"meal-order-api/bag"
	"meal-order-api/live"
	"meal-order-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSubmitEmptyBagIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")

	b, err := env.bags.Open(ctx, user.ID)
	require.NoError(t, err)

	order, placed, err := env.orders.Submit(ctx, user, b)
	require.NoError(t, err)
	assert.False(t, placed)
	assert.Nil(t, order)

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 0, b.Len())
}

func TestSubmitBuildsPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")

	order := env.placeBreakfast(t, user)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, user.ID, order.UserID)
	assert.Equal(t, "Ada", order.UserName)
	assert.False(t, order.CreatedAt.IsZero())
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	require.NotNil(t, item.Meal)
	assert.Nil(t, item.Beverage)
	assert.Equal(t, map[string]bool{"eggs": false, "toast": false}, item.Meal.Cooked)
	assert.Equal(t, map[string]bool{"bacon": false}, item.AddOnsPrepared)
	assert.Equal(t, map[string]int{"eggs": 2, "toast": 1}, item.Line.Meal.Quantities)

	b, err := env.bags.Open(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len(), "bag is cleared after placing")

	stored, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Items[0].Meal.Cooked, stored.Items[0].Meal.Cooked)
	require.Len(t, stored.History, 1)
	assert.Equal(t, models.StatusPending, stored.History[0].ToStatus)
}

// refuseCreates makes every insert into table fail.
func refuseCreates(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:refuse_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(fmt.Errorf("insert into %s refused", table))
		}
	})
	require.NoError(t, err)
}

func TestSubmitFailureKeepsBag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	item := env.breakfastPlate(t)

	b, err := env.bags.AddItem(ctx, user.ID, item.ID, bag.Choice{Quantities: map[string]int{"eggs": 2}})
	require.NoError(t, err)

	refuseCreates(t, env.db, "orders")

	order, placed, err := env.orders.Submit(ctx, user, b)
	require.Error(t, err)
	assert.False(t, placed)
	assert.Nil(t, order)

	var count int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, env.db.Model(&models.StatusHistory{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, 1, b.Len())
	reopened, err := env.bags.Open(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len(), "stored bag is intact")
}

func TestSubmitKeepsLinesAddedMeanwhile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	item := env.breakfastPlate(t)

	b, err := env.bags.AddItem(ctx, user.ID, item.ID, bag.Choice{Quantities: map[string]int{"eggs": 2}})
	require.NoError(t, err)

	// another tab adds a line after b was opened
	_, err = env.bags.AddItem(ctx, user.ID, item.ID, bag.Choice{Quantities: map[string]int{"toast": 3}})
	require.NoError(t, err)

	order, placed, err := env.orders.Submit(ctx, user, b)
	require.NoError(t, err)
	require.True(t, placed)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Line.Meal.Quantities["eggs"])

	reopened, err := env.bags.Open(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())
	assert.Equal(t, 3, reopened.Lines()[0].Meal.Quantities["toast"])
}

func TestFailedPreparationUpdateChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	order := env.placeBreakfast(t, user)

	_, err := env.orders.Start(ctx, order.ID, 0)
	require.NoError(t, err)
	setFlag(t, env, order.ID, 0, PrepComponent, "eggs", true)
	setFlag(t, env, order.ID, 0, PrepComponent, "toast", true)

	// the last flag completes the order, whose notification cannot be stored
	refuseCreates(t, env.db, "notifications")
	_, err = env.orders.SetPreparation(ctx, order.ID, 0, PrepUpdate{
		Target: PrepAddOn,
		Name:   "bacon",
		Value:  boolPtr(true),
	})
	require.Error(t, err)

	stored, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, map[string]bool{"bacon": false}, stored.Items[0].AddOnsPrepared)
	assert.Equal(t, map[string]bool{"eggs": true, "toast": true}, stored.Items[0].Meal.Cooked)
	assert.Len(t, stored.History, 2, "placed and started only")
	assert.Zero(t, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))
}

func setFlag(t *testing.T, env *testEnv, orderID, adminID uint, target PrepTarget, name string, value bool) *models.Order {
	t.Helper()
	order, err := env.orders.SetPreparation(context.Background(), orderID, adminID, PrepUpdate{
		ItemIndex: 0,
		Target:    target,
		Name:      name,
		Value:     boolPtr(value),
	})
	require.NoError(t, err)
	return order
}

func TestPreparingEveryFlagCompletesOnce(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "Ada")
	admin := env.user(t, "Chef")
	order := env.placeBreakfast(t, user)

	o := setFlag(t, env, order.ID, admin.ID, PrepComponent, "eggs", true)
	assert.Equal(t, models.StatusPending, o.Status)
	o = setFlag(t, env, order.ID, admin.ID, PrepComponent, "toast", true)
	assert.Equal(t, models.StatusPending, o.Status)
	o = setFlag(t, env, order.ID, admin.ID, PrepAddOn, "bacon", true)
	assert.Equal(t, models.StatusCompleted, o.Status)
	assert.NotNil(t, o.CompletedAt)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))

	// setting an already set flag changes nothing
	o = setFlag(t, env, order.ID, admin.ID, PrepAddOn, "bacon", true)
	assert.Equal(t, models.StatusCompleted, o.Status)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))

	o = setFlag(t, env, order.ID, admin.ID, PrepComponent, "toast", false)
	assert.Equal(t, models.StatusPending, o.Status, "never started, so back to pending")
	assert.Nil(t, o.CompletedAt)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))
}

func TestUnpreparingStartedOrderReturnsToStarted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	admin := env.user(t, "Chef")
	order := env.placeBreakfast(t, user)

	_, err := env.orders.Start(ctx, order.ID, admin.ID)
	require.NoError(t, err)

	setFlag(t, env, order.ID, admin.ID, PrepComponent, "eggs", true)
	o := setFlag(t, env, order.ID, admin.ID, PrepComponent, "toast", true)
	assert.Equal(t, models.StatusStarted, o.Status)
	o = setFlag(t, env, order.ID, admin.ID, PrepAddOn, "bacon", true)
	assert.Equal(t, models.StatusCompleted, o.Status)

	o = setFlag(t, env, order.ID, admin.ID, PrepAddOn, "bacon", false)
	assert.Equal(t, models.StatusStarted, o.Status)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))
}

func TestTogglePreparation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	order := env.placeBreakfast(t, user)

	toggle := PrepUpdate{ItemIndex: 0, Target: PrepComponent, Name: "eggs"}
	o, err := env.orders.SetPreparation(ctx, order.ID, 1, toggle)
	require.NoError(t, err)
	assert.True(t, o.Items[0].Meal.Cooked["eggs"])

	o, err = env.orders.SetPreparation(ctx, order.ID, 1, toggle)
	require.NoError(t, err)
	assert.False(t, o.Items[0].Meal.Cooked["eggs"])
}

func TestSetPreparationRejectsUnknownTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	order := env.placeBreakfast(t, user)

	cases := []PrepUpdate{
		{ItemIndex: 3, Target: PrepComponent, Name: "eggs"},
		{ItemIndex: 0, Target: PrepComponent, Name: "sausage"},
		{ItemIndex: 0, Target: PrepAddOn, Name: "avocado"},
		{ItemIndex: 0, Target: PrepBeverage},
		{ItemIndex: 0, Target: "garnish"},
	}
	for _, u := range cases {
		_, err := env.orders.SetPreparation(ctx, order.ID, 1, u)
		assert.True(t, models.IsValidation(err), "%+v", u)
	}

	stored, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"eggs": false, "toast": false}, stored.Items[0].Meal.Cooked)

	_, err = env.orders.SetPreparation(ctx, 999, 1, PrepUpdate{Target: PrepComponent, Name: "eggs"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	admin := env.user(t, "Chef")
	order := env.placeBreakfast(t, user)

	o, err := env.orders.Start(ctx, order.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, o.Status)
	assert.NotNil(t, o.StartedAt)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderStarted))

	_, err = env.orders.Start(ctx, order.ID, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.orders.SetCompleted(ctx, order.ID, admin.ID, true)
	require.NoError(t, err)
	_, err = env.orders.Start(ctx, order.ID, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderStarted))

	stored, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 3)
	assert.Equal(t, models.StatusStarted, stored.History[1].ToStatus)
	assert.Equal(t, admin.ID, stored.History[1].ChangedBy)
}

func TestCompletedShortcut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	admin := env.user(t, "Chef")
	order := env.placeBreakfast(t, user)

	_, err := env.orders.Start(ctx, order.ID, admin.ID)
	require.NoError(t, err)

	o, err := env.orders.SetCompleted(ctx, order.ID, admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, o.Status)
	assert.True(t, o.Items[0].Prepared())
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted))

	_, err = env.orders.SetCompleted(ctx, order.ID, admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, env.notificationsFor(t, user.ID, models.NotifyOrderCompleted), "already completed")

	o, err = env.orders.SetCompleted(ctx, order.ID, admin.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Nil(t, o.StartedAt)
	assert.True(t, o.Items[0].Prepared(), "unchecking keeps the preparation flags")

	o, err = env.orders.Start(ctx, order.ID, admin.ID)
	require.NoError(t, err, "an unchecked order can be started again")
	assert.Equal(t, models.StatusStarted, o.Status)
}

func TestDeleteIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	order := env.placeBreakfast(t, user)

	require.NoError(t, env.orders.Delete(ctx, order.ID))

	_, err := env.orders.Get(ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.orders.Delete(ctx, order.ID), ErrNotFound)

	var history int64
	require.NoError(t, env.db.Model(&models.StatusHistory{}).Where("order_id = ?", order.ID).Count(&history).Error)
	assert.Zero(t, history)
}

func TestOrdersAreListedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "Ada")
	bob := env.user(t, "Bob")

	first := env.placeBreakfast(t, ada)
	second := env.placeBreakfast(t, ada)
	env.placeBreakfast(t, bob)

	mine, err := env.orders.ListForUser(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := env.orders.ListAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = env.orders.Start(ctx, first.ID, 1)
	require.NoError(t, err)
	started, err := env.orders.ListAll(ctx, models.StatusStarted)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, first.ID, started[0].ID)

	_, err = env.orders.GetForUser(ctx, first.ID, bob.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOrderChangesArePublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")

	mine := env.hub.Subscribe(live.UserOrdersTopic(user.ID))
	defer mine.Cancel()
	all := env.hub.Subscribe(live.AdminOrdersTopic)
	defer all.Cancel()

	order := env.placeBreakfast(t, user)
	_, err := env.orders.Start(ctx, order.ID, 1)
	require.NoError(t, err)

	for _, sub := range []*live.Subscription{mine, all} {
		select {
		case snap := <-sub.C():
			orders, ok := snap.Data.([]models.Order)
			require.True(t, ok)
			require.Len(t, orders, 1)
			assert.Equal(t, models.StatusStarted, orders[0].Status, "only the latest snapshot is kept")
		case <-time.After(time.Second):
			t.Fatal("no snapshot published")
		}
	}
}

func TestNotificationsMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")
	other := env.user(t, "Bob")
	order := env.placeBreakfast(t, user)

	_, err := env.orders.Start(ctx, order.ID, 1)
	require.NoError(t, err)

	notes, err := env.notifications.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Your order has been started!", notes[0].Message)
	assert.False(t, notes[0].Read)

	_, err = env.notifications.MarkRead(ctx, other.ID, notes[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	note, err := env.notifications.MarkRead(ctx, user.ID, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, note.Read)

	notes, err = env.notifications.List(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, notes[0].Read)
}

func TestAddItemRequiresPublishedItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "Ada")

	item, err := env.catalog.CreateItem(ctx, ItemInput{Name: "Secret stew", Components: []string{"beef"}})
	require.NoError(t, err)

	_, err = env.bags.AddItem(ctx, user.ID, item.ID, bag.Choice{})
	assert.True(t, models.IsValidation(err))

	_, err = env.bags.AddItem(ctx, user.ID, 999, bag.Choice{})
	assert.ErrorIs(t, err, ErrNotFound)
}
