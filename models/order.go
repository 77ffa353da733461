package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus represents the lifecycle stage of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusStarted   OrderStatus = "started"
	StatusCompleted OrderStatus = "completed"
)

// MealPrep tracks which components of a meal line have been cooked.
type MealPrep struct {
	Cooked map[string]bool `json:"cooked"`
}

// BeveragePrep tracks whether a beverage line has been made.
type BeveragePrep struct {
	Cooked bool `json:"cooked"`
}

// OrderItem is an order line: the bag line snapshot plus its preparation flags.
// Meal is set for meal lines, Beverage for beverage lines.
type OrderItem struct {
	Line           Line            `json:"line"`
	Meal           *MealPrep       `json:"meal_prep,omitempty"`
	Beverage       *BeveragePrep   `json:"beverage_prep,omitempty"`
	AddOnsPrepared map[string]bool `json:"add_ons_prepared"`
}

// NewOrderItem snapshots a line with every preparation flag unset: one cooked
// flag per configured component (or a single one for beverages) and one
// prepared flag per add-on ordered at least once.
func NewOrderItem(line Line) OrderItem {
	line = line.Normalized()
	item := OrderItem{Line: line, AddOnsPrepared: map[string]bool{}}
	switch line.Type {
	case LineMeal:
		cooked := make(map[string]bool, len(line.Meal.Quantities))
		for component := range line.Meal.Quantities {
			cooked[component] = false
		}
		item.Meal = &MealPrep{Cooked: cooked}
	case LineBeverage:
		item.Beverage = &BeveragePrep{}
	}
	for _, addOn := range line.AddOns.Selected {
		item.AddOnsPrepared[addOn] = false
	}
	return item
}

// Prepared reports whether every cooked and prepared flag of the item is set.
func (i OrderItem) Prepared() bool {
	if i.Meal != nil {
		for _, done := range i.Meal.Cooked {
			if !done {
				return false
			}
		}
	}
	if i.Beverage != nil && !i.Beverage.Cooked {
		return false
	}
	for _, done := range i.AddOnsPrepared {
		if !done {
			return false
		}
	}
	return true
}

// MarkAllPrepared sets every flag of the item.
func (i *OrderItem) MarkAllPrepared() {
	if i.Meal != nil {
		for component := range i.Meal.Cooked {
			i.Meal.Cooked[component] = true
		}
	}
	if i.Beverage != nil {
		i.Beverage.Cooked = true
	}
	for addOn := range i.AddOnsPrepared {
		i.AddOnsPrepared[addOn] = true
	}
}

type Order struct {
	ID          uint                           `json:"id" gorm:"primaryKey"`
	UserID      uint                           `json:"user_id" gorm:"not null;index"`
	UserName    string                         `json:"user_name"`
	Items       datatypes.JSONSlice[OrderItem] `json:"items"`
	Status      OrderStatus                    `json:"status" gorm:"not null;default:'pending';index"`
	StartedAt   *time.Time                     `json:"started_at"`
	CompletedAt *time.Time                     `json:"completed_at"`
	History     []StatusHistory                `json:"history,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt   time.Time                      `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

// StatusHistory tracks every status change of an order.
type StatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  uint        `json:"changed_by"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}
