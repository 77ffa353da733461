package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Category distinguishes meals (built from components) from beverages.
type Category string

const (
	CategoryMeal     Category = "meal"
	CategoryBeverage Category = "beverage"
)

// MealTime is one of the four slots of the published menu.
type MealTime string

const (
	Breakfast MealTime = "breakfast"
	Lunch     MealTime = "lunch"
	Dinner    MealTime = "dinner"
	Beverages MealTime = "beverages"
)

// MealTimes lists the published menu slots in display order.
var MealTimes = []MealTime{Breakfast, Lunch, Dinner, Beverages}

func (m MealTime) Valid() bool {
	return slices.Contains(MealTimes, m)
}

// MenuItem is a meal or beverage catalog entry. Its meal-time is not
// intrinsic: it comes from the PublishedMenu mapping.
type MenuItem struct {
	ID          uint                        `json:"id" gorm:"primaryKey"`
	Name        string                      `json:"name" gorm:"not null"`
	Description string                      `json:"description"`
	Category    Category                    `json:"category" gorm:"not null;default:'meal'"`
	ImageURL    string                      `json:"image_url"`
	ImageRef    string                      `json:"-"`
	Components  datatypes.JSONSlice[string] `json:"components"`
	AddOns      datatypes.JSONSlice[string] `json:"add_ons"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (m MenuItem) PrimaryKey() uint { return m.ID }

func (m MenuItem) HasComponent(name string) bool {
	return slices.Contains(m.Components, name)
}

func (m MenuItem) HasAddOn(name string) bool {
	return slices.Contains(m.AddOns, name)
}

// MenuEntries maps each meal-time slot to an ordered list of MenuItem ids.
type MenuEntries map[MealTime][]uint

// PublishedMenuKey is the key of the single published menu record.
const PublishedMenuKey = "today"

// PublishedMenu names which items are orderable right now.
type PublishedMenu struct {
	Key       string                          `json:"-" gorm:"primaryKey"`
	Entries   datatypes.JSONType[MenuEntries] `json:"entries"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

// EmptyMenuEntries returns a mapping with every slot present and empty.
func EmptyMenuEntries() MenuEntries {
	entries := make(MenuEntries, len(MealTimes))
	for _, mt := range MealTimes {
		entries[mt] = []uint{}
	}
	return entries
}

// Normalized fills in missing slots and drops unknown ones and duplicates.
func (e MenuEntries) Normalized() MenuEntries {
	out := EmptyMenuEntries()
	for _, mt := range MealTimes {
		seen := map[uint]bool{}
		for _, id := range e[mt] {
			if id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			out[mt] = append(out[mt], id)
		}
	}
	return out
}

// Without returns a copy of the entries with itemID removed from every slot.
func (e MenuEntries) Without(itemID uint) MenuEntries {
	out := EmptyMenuEntries()
	for _, mt := range MealTimes {
		for _, id := range e[mt] {
			if id != itemID {
				out[mt] = append(out[mt], id)
			}
		}
	}
	return out
}

// SlotOf reports which slot an item is published in, if any.
func (e MenuEntries) SlotOf(itemID uint) (MealTime, bool) {
	for _, mt := range MealTimes {
		if slices.Contains(e[mt], itemID) {
			return mt, true
		}
	}
	return "", false
}

// IDs returns every referenced id once, in slot order.
func (e MenuEntries) IDs() []uint {
	var ids []uint
	seen := map[uint]bool{}
	for _, mt := range MealTimes {
		for _, id := range e[mt] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// CondimentListKey is the key of the single condiment list record.
const CondimentListKey = "condiments"

// CondimentList holds the condiments shared by every item.
type CondimentList struct {
	Key       string                      `json:"-" gorm:"primaryKey"`
	Items     datatypes.JSONSlice[string] `json:"items"`
	UpdatedAt time.Time                   `json:"updated_at"`
}
