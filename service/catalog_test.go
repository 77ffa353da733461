package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"meal-order-api/models"
	"meal-order-api/objectstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestCreateItemValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []ItemInput{
		{Name: "  "},
		{Name: "Soup"},
		{Name: "Soup", Components: []string{"broth", "broth"}},
		{Name: "Soup", Components: []string{"broth"}, MealTime: models.Beverages},
		{Name: "Cola", Category: models.CategoryBeverage, Components: []string{"ice"}},
		{Name: "Soup", Category: "dessert", Components: []string{"broth"}},
		{Name: "Soup", Components: []string{"broth"}, MealTime: "brunch"},
	}
	for _, in := range cases {
		_, err := env.catalog.CreateItem(ctx, in)
		assert.True(t, models.IsValidation(err), "%+v", in)
	}
}

func TestCreateItemPublishesInSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	plate := env.breakfastPlate(t)
	cola, err := env.catalog.CreateItem(ctx, ItemInput{
		Name:     "Cola",
		Category: models.CategoryBeverage,
		MealTime: models.Lunch,
	})
	require.NoError(t, err)

	entries, err := env.catalog.Menu(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{plate.ID}, entries[models.Breakfast])
	assert.Equal(t, []uint{cola.ID}, entries[models.Beverages], "beverages always go under beverages")
	assert.Empty(t, entries[models.Lunch])
}

func TestUpdateItemMovesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plate := env.breakfastPlate(t)

	updated, err := env.catalog.UpdateItem(ctx, plate.ID, ItemInput{
		Name:       "Brunch plate",
		Components: []string{"eggs", "toast", "beans"},
		MealTime:   models.Lunch,
	})
	require.NoError(t, err)
	assert.Equal(t, "Brunch plate", updated.Name)
	assert.Len(t, updated.Components, 3)

	slot, ok, err := env.catalog.Published(ctx, plate.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.Lunch, slot)

	// no meal time keeps the current slot
	_, err = env.catalog.UpdateItem(ctx, plate.ID, ItemInput{Name: "Brunch plate", Components: []string{"eggs"}})
	require.NoError(t, err)
	slot, _, err = env.catalog.Published(ctx, plate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Lunch, slot)

	_, err = env.catalog.UpdateItem(ctx, 999, ItemInput{Name: "x", Components: []string{"y"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteItemRemovesFromMenuAndImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plate := env.breakfastPlate(t)

	withImage, err := env.catalog.UploadImage(ctx, plate.ID, pngHeader)
	require.NoError(t, err)
	imagePath := filepath.Join(env.objects.Root(), filepath.FromSlash(withImage.ImageRef))
	require.FileExists(t, imagePath)

	require.NoError(t, env.catalog.DeleteItem(ctx, plate.ID))

	entries, err := env.catalog.Menu(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries.IDs())
	_, err = os.Stat(imagePath)
	assert.True(t, os.IsNotExist(err))

	_, err = env.catalog.GetItem(ctx, plate.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadImageReplacesOld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plate := env.breakfastPlate(t)

	first, err := env.catalog.UploadImage(ctx, plate.ID, pngHeader)
	require.NoError(t, err)
	firstPath := filepath.Join(env.objects.Root(), filepath.FromSlash(first.ImageRef))

	second, err := env.catalog.UploadImage(ctx, plate.ID, pngHeader)
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageRef, second.ImageRef)
	assert.Contains(t, second.ImageURL, second.ImageRef)

	_, err = os.Stat(firstPath)
	assert.True(t, os.IsNotExist(err), "replaced image is deleted")

	_, err = env.catalog.UploadImage(ctx, plate.ID, []byte("not an image"))
	assert.ErrorIs(t, err, objectstore.ErrNotImage)

	stored, err := env.catalog.GetItem(ctx, plate.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ImageRef, stored.ImageRef)
}

func TestToggleMenuEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stew, err := env.catalog.CreateItem(ctx, ItemInput{Name: "Stew", Components: []string{"beef"}})
	require.NoError(t, err)

	entries, err := env.catalog.ToggleMenuEntry(ctx, models.Dinner, stew.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{stew.ID}, entries[models.Dinner])

	entries, err = env.catalog.ToggleMenuEntry(ctx, models.Lunch, stew.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{stew.ID}, entries[models.Lunch])
	assert.Empty(t, entries[models.Dinner], "an item lives in one slot")

	entries, err = env.catalog.ToggleMenuEntry(ctx, models.Lunch, stew.ID)
	require.NoError(t, err)
	assert.Empty(t, entries.IDs())

	_, err = env.catalog.ToggleMenuEntry(ctx, models.Beverages, stew.ID)
	assert.True(t, models.IsValidation(err))
	_, err = env.catalog.ToggleMenuEntry(ctx, "brunch", stew.ID)
	assert.True(t, models.IsValidation(err))
	_, err = env.catalog.ToggleMenuEntry(ctx, models.Lunch, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentToggles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []uint
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		item, err := env.catalog.CreateItem(ctx, ItemInput{Name: name, Components: []string{"x"}})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.catalog.ToggleMenuEntry(ctx, models.Dinner, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := env.catalog.Menu(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, entries[models.Dinner], "no toggle is lost")
}

func TestResolvedMenuSkipsStaleIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plate := env.breakfastPlate(t)

	_, err := env.catalog.SetMenu(ctx, models.MenuEntries{
		models.Breakfast: {plate.ID, 4242},
	})
	require.NoError(t, err)

	menu, err := env.catalog.ResolvedMenu(ctx)
	require.NoError(t, err)
	require.Len(t, menu[models.Breakfast], 1)
	assert.Equal(t, plate.ID, menu[models.Breakfast][0].ID)
	assert.Empty(t, menu[models.Dinner])

	_, err = env.catalog.SetMenu(ctx, models.MenuEntries{"brunch": {plate.ID}})
	assert.True(t, models.IsValidation(err))
}

func TestCondiments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	list, err := env.catalog.Condiments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = env.catalog.AddCondiment(ctx, "ketchup")
	require.NoError(t, err)
	_, err = env.catalog.AddCondiment(ctx, "mustard")
	require.NoError(t, err)
	list, err = env.catalog.AddCondiment(ctx, "ketchup")
	require.NoError(t, err)
	assert.Equal(t, []string{"ketchup", "mustard"}, list)

	list, err = env.catalog.RemoveCondiment(ctx, "ketchup")
	require.NoError(t, err)
	assert.Equal(t, []string{"mustard"}, list)

	list, err = env.catalog.SetCondiments(ctx, []string{"mayo", " hot sauce "})
	require.NoError(t, err)
	assert.Equal(t, []string{"mayo", "hot sauce"}, list)

	_, err = env.catalog.AddCondiment(ctx, " ")
	assert.True(t, models.IsValidation(err))
	_, err = env.catalog.SetCondiments(ctx, []string{"mayo", "mayo"})
	assert.True(t, models.IsValidation(err))

	list, err = env.catalog.Condiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mayo", "hot sauce"}, list)
}
