package models

import (
	"fmt"
	"maps"
	"sort"
)

// LineType tags which variant a Line carries.
type LineType string

const (
	LineMeal     LineType = "meal"
	LineBeverage LineType = "beverage"
)

// Selection is a quantity per name (add-on or condiment) plus the list of
// names whose quantity is positive. Selected is always derived from
// Quantities and must never be set on its own.
type Selection struct {
	Quantities map[string]int `json:"quantities"`
	Selected   []string       `json:"selected"`
}

// NewSelection copies quantities, clamps negatives to zero and derives Selected.
func NewSelection(quantities map[string]int) Selection {
	s := Selection{Quantities: make(map[string]int, len(quantities))}
	for name, qty := range quantities {
		s.Quantities[name] = max(qty, 0)
	}
	s.Selected = selectedNames(s.Quantities)
	return s
}

func selectedNames(quantities map[string]int) []string {
	names := []string{}
	for name, qty := range quantities {
		if qty > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Adjust returns a new Selection with delta applied to name, floored at zero.
func (s Selection) Adjust(name string, delta int) Selection {
	q := maps.Clone(s.Quantities)
	if q == nil {
		q = map[string]int{}
	}
	q[name] = max(q[name]+delta, 0)
	return NewSelection(q)
}

// Normalized re-derives Selected from Quantities.
func (s Selection) Normalized() Selection {
	return NewSelection(s.Quantities)
}

// Consistent reports whether Selected is exactly the set of positive keys.
func (s Selection) Consistent() bool {
	want := selectedNames(s.Quantities)
	if len(want) != len(s.Selected) {
		return false
	}
	for i := range want {
		if want[i] != s.Selected[i] {
			return false
		}
	}
	return true
}

// Total is the sum of all quantities.
func (s Selection) Total() int {
	total := 0
	for _, qty := range s.Quantities {
		total += qty
	}
	return total
}

// MealLine carries the fields that only exist for meals.
type MealLine struct {
	Quantities map[string]int `json:"quantities"`
	Notes      string         `json:"notes,omitempty"`
}

// BeverageLine carries the fields that only exist for beverages.
type BeverageLine struct {
	Quantity int `json:"quantity"`
}

// Line is one customized selection: in the bag before checkout and as the
// snapshot inside an order item after. Exactly one of Meal or Beverage is set,
// matching Type.
type Line struct {
	Type       LineType      `json:"type"`
	ItemID     uint          `json:"item_id"`
	Name       string        `json:"name"`
	MealTime   MealTime      `json:"meal_time,omitempty"`
	Meal       *MealLine     `json:"meal,omitempty"`
	Beverage   *BeverageLine `json:"beverage,omitempty"`
	AddOns     Selection     `json:"add_ons"`
	Condiments Selection     `json:"condiments"`
}

// Validate checks the variant shape and every quantity rule.
func (l Line) Validate() error {
	if l.ItemID == 0 {
		return NewValidationError("line is missing its menu item")
	}
	switch l.Type {
	case LineMeal:
		if l.Meal == nil || l.Beverage != nil {
			return NewValidationError("meal line must carry meal fields only")
		}
		for component, qty := range l.Meal.Quantities {
			if qty <= 0 {
				return NewValidationError(fmt.Sprintf("quantity for %q must be at least 1", component))
			}
		}
	case LineBeverage:
		if l.Beverage == nil || l.Meal != nil {
			return NewValidationError("beverage line must carry beverage fields only")
		}
		if l.Beverage.Quantity < 1 {
			return NewValidationError("beverage quantity must be at least 1")
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown line type %q", l.Type))
	}
	for _, sel := range []Selection{l.AddOns, l.Condiments} {
		for name, qty := range sel.Quantities {
			if qty < 0 {
				return NewValidationError(fmt.Sprintf("quantity for %q cannot be negative", name))
			}
		}
		if !sel.Consistent() {
			return NewValidationError("selected names do not match quantities")
		}
	}
	return nil
}

// Normalized returns a deep copy with selections re-derived.
func (l Line) Normalized() Line {
	out := l
	if l.Meal != nil {
		out.Meal = &MealLine{Quantities: maps.Clone(l.Meal.Quantities), Notes: l.Meal.Notes}
		if out.Meal.Quantities == nil {
			out.Meal.Quantities = map[string]int{}
		}
	}
	if l.Beverage != nil {
		b := *l.Beverage
		out.Beverage = &b
	}
	out.AddOns = l.AddOns.Normalized()
	out.Condiments = l.Condiments.Normalized()
	return out
}
