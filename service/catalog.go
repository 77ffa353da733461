package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"meal-order-api/live"
	"meal-order-api/models"
	"meal-order-api/objectstore"
	"meal-order-api/store"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const imageNamespace = "meals"

// Catalog manages menu items, the published menu and the condiment list.
type Catalog struct {
	db      *gorm.DB
	objects objectstore.Store
	hub     *live.Hub
	logger  *zap.SugaredLogger
}

func NewCatalog(db *gorm.DB, objects objectstore.Store, hub *live.Hub, logger *zap.SugaredLogger) *Catalog {
	return &Catalog{db: db, objects: objects, hub: hub, logger: logger}
}

// ItemInput carries the editable fields of a menu item. MealTime, when set,
// publishes the item in that slot. Beverages are always published under
// beverages.
type ItemInput struct {
	Name        string
	Description string
	Category    models.Category
	Components  []string
	AddOns      []string
	MealTime    models.MealTime
}

func (in ItemInput) normalize() (ItemInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, models.NewValidationError("name is required")
	}
	if in.Category == "" {
		in.Category = models.CategoryMeal
	}

	var err error
	if in.Components, err = cleanNames("component", in.Components); err != nil {
		return in, err
	}
	if in.AddOns, err = cleanNames("add-on", in.AddOns); err != nil {
		return in, err
	}

	switch in.Category {
	case models.CategoryMeal:
		if len(in.Components) == 0 {
			return in, models.NewValidationError("meals need at least one component")
		}
		if in.MealTime == models.Beverages {
			return in, models.NewValidationError("meals cannot be served as beverages")
		}
	case models.CategoryBeverage:
		if len(in.Components) > 0 {
			return in, models.NewValidationError("beverages have no components")
		}
		if in.MealTime != "" {
			in.MealTime = models.Beverages
		}
	default:
		return in, models.NewValidationError(fmt.Sprintf("unknown category %q", in.Category))
	}

	if in.MealTime != "" && !in.MealTime.Valid() {
		return in, models.NewValidationError(fmt.Sprintf("unknown meal time %q", in.MealTime))
	}
	return in, nil
}

// cleanNames trims names and rejects blanks and duplicates.
func cleanNames(kind string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, models.NewValidationError(fmt.Sprintf("%s names cannot be empty", kind))
		}
		if slices.Contains(out, n) {
			return nil, models.NewValidationError(fmt.Sprintf("duplicate %s %q", kind, n))
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *Catalog) ListItems(ctx context.Context, category models.Category) ([]models.MenuItem, error) {
	var items []models.MenuItem
	query := c.db.WithContext(ctx)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	err := query.Order("name asc").Find(&items).Error
	return items, err
}

func (c *Catalog) GetItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	err := c.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsByIDs resolves ids in batches. Unknown ids are skipped.
func (c *Catalog) ItemsByIDs(ctx context.Context, ids []uint) ([]models.MenuItem, error) {
	return store.ByIDs[models.MenuItem](ctx, c.db, ids)
}

func (c *Catalog) CreateItem(ctx context.Context, in ItemInput) (*models.MenuItem, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	item := models.MenuItem{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Components:  in.Components,
		AddOns:      in.AddOns,
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if in.MealTime == "" {
			return nil
		}
		return c.editMenu(tx, func(e models.MenuEntries) (models.MenuEntries, error) {
			e = e.Without(item.ID)
			e[in.MealTime] = append(e[in.MealTime], item.ID)
			return e, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	c.logger.Infow("menu item created", "item_id", item.ID, "name", item.Name, "meal_time", in.MealTime)
	if in.MealTime != "" {
		c.publishMenu(ctx)
	}
	return &item, nil
}

// UpdateItem replaces an item's fields. A non-empty MealTime moves the item
// to that slot; an empty one leaves its menu placement alone.
func (c *Catalog) UpdateItem(ctx context.Context, id uint, in ItemInput) (*models.MenuItem, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	var item models.MenuItem
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		item.Name = in.Name
		item.Description = in.Description
		item.Category = in.Category
		item.Components = in.Components
		item.AddOns = in.AddOns
		if err := tx.Save(&item).Error; err != nil {
			return err
		}

		return c.editMenu(tx, func(e models.MenuEntries) (models.MenuEntries, error) {
			slot, published := e.SlotOf(item.ID)
			switch {
			case in.MealTime != "":
				slot, published = in.MealTime, true
			case published && item.Category == models.CategoryBeverage:
				slot = models.Beverages
			case published && slot == models.Beverages:
				published = false
			}
			e = e.Without(item.ID)
			if published {
				e[slot] = append(e[slot], item.ID)
			}
			return e, nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	c.logger.Infow("menu item updated", "item_id", item.ID)
	c.publishMenu(ctx)
	return &item, nil
}

// DeleteItem removes an item from the catalog and every menu slot, then
// drops its image.
func (c *Catalog) DeleteItem(ctx context.Context, id uint) error {
	var item models.MenuItem
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := c.editMenu(tx, func(e models.MenuEntries) (models.MenuEntries, error) {
			return e.Without(item.ID), nil
		}); err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return err
	}

	c.dropImage(ctx, item.ImageRef)
	c.logger.Infow("menu item deleted", "item_id", id)
	c.publishMenu(ctx)
	return nil
}

// UploadImage stores a new image for an item and deletes the one it replaces.
func (c *Catalog) UploadImage(ctx context.Context, id uint, data []byte) (*models.MenuItem, error) {
	if _, err := c.GetItem(ctx, id); err != nil {
		return nil, err
	}

	obj, err := c.objects.PutImage(ctx, imageNamespace, data)
	if err != nil {
		return nil, err
	}

	var item models.MenuItem
	var oldRef string
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		oldRef = item.ImageRef
		item.ImageRef = obj.Ref
		item.ImageURL = obj.URL
		return tx.Model(&item).Select("ImageRef", "ImageURL", "UpdatedAt").Updates(&item).Error
	})
	if err != nil {
		c.dropImage(ctx, obj.Ref)
		return nil, err
	}

	c.dropImage(ctx, oldRef)
	c.logger.Infow("menu item image replaced", "item_id", id, "ref", obj.Ref)
	c.publishMenu(ctx)
	return &item, nil
}

func (c *Catalog) dropImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := c.objects.Delete(ctx, ref); err != nil {
		c.logger.Warnw("failed to delete image", "ref", ref, "error", err)
	}
}

// Menu returns the raw published menu mapping.
func (c *Catalog) Menu(ctx context.Context) (models.MenuEntries, error) {
	return loadMenu(c.db.WithContext(ctx))
}

// ResolvedMenu returns the published items per slot. Ids that no longer
// resolve to an item are skipped.
func (c *Catalog) ResolvedMenu(ctx context.Context) (map[models.MealTime][]models.MenuItem, error) {
	entries, err := c.Menu(ctx)
	if err != nil {
		return nil, err
	}
	items, err := c.ItemsByIDs(ctx, entries.IDs())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve menu items: %w", err)
	}
	byID := make(map[uint]models.MenuItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	out := make(map[models.MealTime][]models.MenuItem, len(models.MealTimes))
	for _, mt := range models.MealTimes {
		out[mt] = []models.MenuItem{}
		for _, id := range entries[mt] {
			if item, ok := byID[id]; ok {
				out[mt] = append(out[mt], item)
			}
		}
	}
	return out, nil
}

// Published reports the slot itemID is currently published in.
func (c *Catalog) Published(ctx context.Context, itemID uint) (models.MealTime, bool, error) {
	entries, err := c.Menu(ctx)
	if err != nil {
		return "", false, err
	}
	mt, ok := entries.SlotOf(itemID)
	return mt, ok, nil
}

// ToggleMenuEntry publishes itemID under mealTime, or withdraws it if it is
// already there.
func (c *Catalog) ToggleMenuEntry(ctx context.Context, mealTime models.MealTime, itemID uint) (models.MenuEntries, error) {
	if !mealTime.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown meal time %q", mealTime))
	}

	var result models.MenuEntries
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.MenuItem
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if (item.Category == models.CategoryBeverage) != (mealTime == models.Beverages) {
			return models.NewValidationError(fmt.Sprintf("%s cannot be served under %s", item.Name, mealTime))
		}
		return c.editMenu(tx, func(e models.MenuEntries) (models.MenuEntries, error) {
			if slices.Contains(e[mealTime], itemID) {
				result = e.Without(itemID)
			} else {
				result = e.Without(itemID)
				result[mealTime] = append(result[mealTime], itemID)
			}
			return result, nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Infow("menu entry toggled", "item_id", itemID, "meal_time", mealTime)
	c.publishMenu(ctx)
	return result, nil
}

// SetMenu replaces the whole published menu.
func (c *Catalog) SetMenu(ctx context.Context, entries models.MenuEntries) (models.MenuEntries, error) {
	for mt := range entries {
		if !mt.Valid() {
			return nil, models.NewValidationError(fmt.Sprintf("unknown meal time %q", mt))
		}
	}
	entries = entries.Normalized()

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveMenu(tx, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save menu: %w", err)
	}

	c.logger.Infow("menu replaced", "items", len(entries.IDs()))
	c.publishMenu(ctx)
	return entries, nil
}

// editMenu is a read-modify-write of the published menu within tx.
func (c *Catalog) editMenu(tx *gorm.DB, fn func(models.MenuEntries) (models.MenuEntries, error)) error {
	entries, err := loadMenu(tx)
	if err != nil {
		return err
	}
	entries, err = fn(entries)
	if err != nil {
		return err
	}
	return saveMenu(tx, entries)
}

func loadMenu(db *gorm.DB) (models.MenuEntries, error) {
	var menu models.PublishedMenu
	err := db.Where(&models.PublishedMenu{Key: models.PublishedMenuKey}).First(&menu).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.EmptyMenuEntries(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load menu: %w", err)
	}
	return menu.Entries.Data().Normalized(), nil
}

func saveMenu(db *gorm.DB, entries models.MenuEntries) error {
	menu := models.PublishedMenu{
		Key:     models.PublishedMenuKey,
		Entries: datatypes.NewJSONType(entries.Normalized()),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entries", "updated_at"}),
	}).Create(&menu).Error
}

func (c *Catalog) publishMenu(ctx context.Context) {
	if !c.hub.HasSubscribers(live.MenuTopic) {
		return
	}
	menu, err := c.ResolvedMenu(ctx)
	if err != nil {
		c.logger.Errorw("failed to load menu for live update", "error", err)
		return
	}
	c.hub.Publish(live.MenuTopic, menu)
}

// Condiments returns the shared condiment list.
func (c *Catalog) Condiments(ctx context.Context) ([]string, error) {
	return loadCondiments(c.db.WithContext(ctx))
}

// AddCondiment appends name to the list unless it is already there.
func (c *Catalog) AddCondiment(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("condiment name is required")
	}
	return c.editCondiments(ctx, func(list []string) []string {
		if slices.Contains(list, name) {
			return list
		}
		return append(list, name)
	})
}

func (c *Catalog) RemoveCondiment(ctx context.Context, name string) ([]string, error) {
	return c.editCondiments(ctx, func(list []string) []string {
		return slices.DeleteFunc(list, func(n string) bool { return n == name })
	})
}

// SetCondiments replaces the list.
func (c *Catalog) SetCondiments(ctx context.Context, names []string) ([]string, error) {
	names, err := cleanNames("condiment", names)
	if err != nil {
		return nil, err
	}
	return c.editCondiments(ctx, func([]string) []string { return names })
}

func (c *Catalog) editCondiments(ctx context.Context, fn func([]string) []string) ([]string, error) {
	var list []string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadCondiments(tx)
		if err != nil {
			return err
		}
		list = fn(current)
		record := models.CondimentList{Key: models.CondimentListKey, Items: list}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"items", "updated_at"}),
		}).Create(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save condiments: %w", err)
	}
	c.logger.Infow("condiments updated", "count", len(list))
	return list, nil
}

func loadCondiments(db *gorm.DB) ([]string, error) {
	var record models.CondimentList
	err := db.Where(&models.CondimentList{Key: models.CondimentListKey}).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load condiments: %w", err)
	}
	if record.Items == nil {
		return []string{}, nil
	}
	return slices.Clone([]string(record.Items)), nil
}
