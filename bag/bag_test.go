package bag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"meal-order-api/config"
	"meal-order-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	plate = models.MenuItem{
		ID:         1,
		Name:       "Breakfast plate",
		Category:   models.CategoryMeal,
		Components: []string{"eggs", "toast"},
		AddOns:     []string{"bacon", "avocado"},
	}
	juice = models.MenuItem{
		ID:       2,
		Name:     "Orange juice",
		Category: models.CategoryBeverage,
	}
	condiments = []string{"ketchup", "hot sauce"}
)

// memStore is an in-memory Store whose Save can be made to fail.
type memStore struct {
	data    map[string][]byte
	failErr error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) { return m.data[key], nil }

func (m *memStore) Save(_ context.Context, key string, data []byte) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.data[key] = data
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func openBag(t *testing.T, store Store) *Bag {
	t.Helper()
	b, err := Open(context.Background(), store, "user-1", zap.NewNop().Sugar())
	require.NoError(t, err)
	return b
}

func plateLine(t *testing.T) models.Line {
	t.Helper()
	line, err := NewLine(plate, condiments, Choice{
		MealTime:   models.Breakfast,
		Quantities: map[string]int{"eggs": 2},
		AddOns:     map[string]int{"bacon": 1},
	})
	require.NoError(t, err)
	return line
}

func juiceLine(t *testing.T) models.Line {
	t.Helper()
	line, err := NewLine(juice, condiments, Choice{Quantity: 1})
	require.NoError(t, err)
	return line
}

func requireConsistent(t *testing.T, b *Bag) {
	t.Helper()
	for i, l := range b.Lines() {
		assert.True(t, l.AddOns.Consistent(), "line %d add-ons", i)
		assert.True(t, l.Condiments.Consistent(), "line %d condiments", i)
	}
}

func TestNewLine(t *testing.T) {
	line := plateLine(t)

	assert.Equal(t, models.LineMeal, line.Type)
	assert.Equal(t, map[string]int{"eggs": 2, "toast": 1}, line.Meal.Quantities)
	assert.Equal(t, []string{"bacon"}, line.AddOns.Selected)
	assert.Equal(t, 0, line.AddOns.Quantities["avocado"])
	assert.Empty(t, line.Condiments.Selected)

	bev := juiceLine(t)
	assert.Equal(t, models.LineBeverage, bev.Type)
	assert.Equal(t, models.Beverages, bev.MealTime)
	assert.Nil(t, bev.Meal)
}

func TestNewLineRejectsUnknownNames(t *testing.T) {
	_, err := NewLine(plate, condiments, Choice{Quantities: map[string]int{"sausage": 1}})
	assert.True(t, models.IsValidation(err))

	_, err = NewLine(plate, condiments, Choice{AddOns: map[string]int{"cheese": 1}})
	assert.True(t, models.IsValidation(err))

	_, err = NewLine(plate, condiments, Choice{Condiments: map[string]int{"mayo": 1}})
	assert.True(t, models.IsValidation(err))

	_, err = NewLine(juice, condiments, Choice{Quantity: 0})
	assert.True(t, models.IsValidation(err), "beverages need a quantity")
}

func TestExtraCondiments(t *testing.T) {
	line, err := NewLine(plate, condiments, Choice{Condiments: map[string]int{"ketchup": 2, "hot sauce": 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, ExtraCondiments(line))

	assert.Equal(t, 0, ExtraCondiments(plateLine(t)))
}

func TestAddEditRemove(t *testing.T) {
	ctx := context.Background()
	b := openBag(t, newMemStore())

	require.NoError(t, b.Add(ctx, plateLine(t)))
	require.NoError(t, b.Add(ctx, juiceLine(t)))
	require.Equal(t, 2, b.Len())

	notes := "no butter"
	require.NoError(t, b.Edit(ctx, 0, Patch{
		AddOns:     map[string]int{"bacon": 0, "avocado": 2},
		Condiments: map[string]int{"ketchup": 1},
		Notes:      &notes,
	}))
	line := b.Lines()[0]
	assert.Equal(t, []string{"avocado"}, line.AddOns.Selected)
	assert.Equal(t, []string{"ketchup"}, line.Condiments.Selected)
	assert.Equal(t, "no butter", line.Meal.Notes)
	requireConsistent(t, b)

	qty := 3
	require.NoError(t, b.Edit(ctx, 1, Patch{Quantity: &qty}))
	assert.Equal(t, 3, b.Lines()[1].Beverage.Quantity)

	require.NoError(t, b.Remove(ctx, 0))
	require.Equal(t, 1, b.Len())
	assert.Equal(t, juice.ID, b.Lines()[0].ItemID)

	assert.ErrorIs(t, b.Remove(ctx, 5), ErrIndexOutOfRange)
	assert.ErrorIs(t, b.Edit(ctx, -1, Patch{}), ErrIndexOutOfRange)
}

func TestEditRejectsInvalidPatch(t *testing.T) {
	ctx := context.Background()
	b := openBag(t, newMemStore())
	require.NoError(t, b.Add(ctx, plateLine(t)))

	err := b.Edit(ctx, 0, Patch{Quantities: map[string]int{"eggs": 0}})
	assert.True(t, models.IsValidation(err))

	err = b.Edit(ctx, 0, Patch{Quantities: map[string]int{"sausage": 1}})
	assert.True(t, models.IsValidation(err))

	assert.Equal(t, 2, b.Lines()[0].Meal.Quantities["eggs"], "failed edits leave the line alone")
}

func TestEditAndAdjustRejectUnknownNames(t *testing.T) {
	ctx := context.Background()
	b := openBag(t, newMemStore())
	require.NoError(t, b.Add(ctx, plateLine(t)))

	err := b.Edit(ctx, 0, Patch{AddOns: map[string]int{"caviar": 3}})
	assert.True(t, models.IsValidation(err))

	err = b.Edit(ctx, 0, Patch{Condiments: map[string]int{"gold leaf": 2}})
	assert.True(t, models.IsValidation(err))

	err = b.Adjust(ctx, 0, Adjustment{Target: TargetCondiment, Name: "truffle oil", Delta: 1})
	assert.True(t, models.IsValidation(err))

	line := b.Lines()[0]
	assert.Equal(t, []string{"bacon"}, line.AddOns.Selected)
	assert.NotContains(t, line.AddOns.Quantities, "caviar")
	assert.Empty(t, line.Condiments.Selected)
	assert.Len(t, line.Condiments.Quantities, len(condiments))

	item := models.NewOrderItem(line)
	assert.Equal(t, map[string]bool{"bacon": false}, item.AddOnsPrepared)
}

func TestTakeKeepsLinesAddedElsewhere(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	b := openBag(t, store)
	require.NoError(t, b.Add(ctx, plateLine(t)))
	placed := b.Lines()

	// a second session adds a line after the first one read its bag
	other := openBag(t, store)
	require.NoError(t, other.Add(ctx, juiceLine(t)))

	require.NoError(t, b.Take(ctx, placed))
	require.Equal(t, 1, b.Len())
	assert.Equal(t, juice.ID, b.Lines()[0].ItemID)

	reloaded := openBag(t, store)
	require.Equal(t, 1, reloaded.Len())
	assert.Equal(t, juice.ID, reloaded.Lines()[0].ItemID)
}

func TestTakeEverythingClearsStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	b := openBag(t, store)
	require.NoError(t, b.Add(ctx, plateLine(t)))
	require.NoError(t, b.Add(ctx, plateLine(t)))
	placed := b.Lines()

	require.NoError(t, b.Take(ctx, placed[:1]))
	assert.Equal(t, 1, b.Len(), "identical lines are taken one at a time")

	require.NoError(t, b.Take(ctx, placed[1:]))
	assert.Equal(t, 0, b.Len())
	assert.NotContains(t, store.data, "user-1")
}

func TestAdjust(t *testing.T) {
	ctx := context.Background()
	b := openBag(t, newMemStore())
	require.NoError(t, b.Add(ctx, plateLine(t)))
	require.NoError(t, b.Add(ctx, juiceLine(t)))

	require.NoError(t, b.Adjust(ctx, 0, Adjustment{Target: TargetAddOn, Name: "bacon", Delta: -1}))
	assert.Empty(t, b.Lines()[0].AddOns.Selected)

	require.NoError(t, b.Adjust(ctx, 0, Adjustment{Target: TargetAddOn, Name: "bacon", Delta: -1}))
	assert.Equal(t, 0, b.Lines()[0].AddOns.Quantities["bacon"])

	require.NoError(t, b.Adjust(ctx, 0, Adjustment{Target: TargetCondiment, Name: "ketchup", Delta: 1}))
	assert.Equal(t, []string{"ketchup"}, b.Lines()[0].Condiments.Selected)

	require.NoError(t, b.Adjust(ctx, 0, Adjustment{Target: TargetComponent, Name: "toast", Delta: 1}))
	assert.Equal(t, 2, b.Lines()[0].Meal.Quantities["toast"])

	require.NoError(t, b.Adjust(ctx, 1, Adjustment{Target: TargetQuantity, Delta: -1}))
	assert.Equal(t, 1, b.Lines()[1].Beverage.Quantity, "beverage quantity stops at one")

	err := b.Adjust(ctx, 0, Adjustment{Target: TargetComponent, Name: "eggs", Delta: -2})
	assert.True(t, models.IsValidation(err), "components cannot drop to zero")

	requireConsistent(t, b)
}

func TestFailedSaveKeepsPreviousContents(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b := openBag(t, store)
	require.NoError(t, b.Add(ctx, plateLine(t)))

	store.failErr = errors.New("disk full")
	err := b.Add(ctx, juiceLine(t))
	require.Error(t, err)
	assert.Equal(t, 1, b.Len())

	reopened := openBag(t, store)
	assert.Equal(t, 1, reopened.Len())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	b := openBag(t, store)
	require.NoError(t, b.Add(ctx, plateLine(t)))

	require.NoError(t, b.Clear(ctx))
	assert.Equal(t, 0, b.Len())
	assert.NotContains(t, store.data, "user-1")
}

func TestBagSurvivesReload(t *testing.T) {
	db, err := config.OpenDB(":memory:")
	require.NoError(t, err)
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]Store{
		"db":   NewDBStore(db),
		"file": fileStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := openBag(t, store)
			require.NoError(t, b.Add(ctx, plateLine(t)))
			require.NoError(t, b.Add(ctx, juiceLine(t)))

			reloaded := openBag(t, store)
			lines := reloaded.Lines()
			require.Len(t, lines, 2)
			assert.Equal(t, plate.ID, lines[0].ItemID)
			assert.Equal(t, juice.ID, lines[1].ItemID)
			assert.Equal(t, b.Lines(), lines)

			require.NoError(t, reloaded.Clear(ctx))
			assert.Equal(t, 0, openBag(t, store).Len())
		})
	}
}

func TestCorruptBagStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "user-1.json"), []byte("{not json"), 0o644))
	assert.Equal(t, 0, openBag(t, store).Len())

	invalid := `[{"type":"meal","item_id":1,"meal":{"quantities":{"eggs":0}}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user-1.json"), []byte(invalid), 0o644))
	assert.Equal(t, 0, openBag(t, store).Len())
}

func TestFileStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Save(context.Background(), "../escape", []byte("[]")))
}
