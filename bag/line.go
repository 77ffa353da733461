package bag

import (
	"fmt"
	"slices"

	"meal-order-api/models"
)

// FreeCondiments is how many condiments come with an item at no charge.
const FreeCondiments = 1

// Choice is what a user picked in the customization form.
type Choice struct {
	MealTime   models.MealTime
	Quantities map[string]int // meals: per component, missing components default to 1
	Quantity   int            // beverages
	AddOns     map[string]int
	Condiments map[string]int
	Notes      string
}

// NewLine builds a validated line for item from a customization choice.
// Components and add-ons must belong to the item and condiments must be on
// the shared condiment list.
func NewLine(item models.MenuItem, condiments []string, c Choice) (models.Line, error) {
	line := models.Line{
		ItemID:   item.ID,
		Name:     item.Name,
		MealTime: c.MealTime,
	}

	switch item.Category {
	case models.CategoryBeverage:
		if len(c.Quantities) > 0 || c.Notes != "" {
			return models.Line{}, models.NewValidationError("beverages only take a quantity")
		}
		line.Type = models.LineBeverage
		line.MealTime = models.Beverages
		line.Beverage = &models.BeverageLine{Quantity: c.Quantity}
	default:
		quantities := make(map[string]int, len(item.Components))
		for _, component := range item.Components {
			quantities[component] = 1
		}
		for component, qty := range c.Quantities {
			if !item.HasComponent(component) {
				return models.Line{}, models.NewValidationError(fmt.Sprintf("%q is not a component of %s", component, item.Name))
			}
			quantities[component] = qty
		}
		line.Type = models.LineMeal
		line.Meal = &models.MealLine{Quantities: quantities, Notes: c.Notes}
	}

	addOns := make(map[string]int, len(item.AddOns))
	for _, addOn := range item.AddOns {
		addOns[addOn] = 0
	}
	for addOn, qty := range c.AddOns {
		if !item.HasAddOn(addOn) {
			return models.Line{}, models.NewValidationError(fmt.Sprintf("%q is not an add-on of %s", addOn, item.Name))
		}
		addOns[addOn] = qty
	}
	line.AddOns = models.NewSelection(addOns)

	condimentQty := make(map[string]int, len(condiments))
	for _, condiment := range condiments {
		condimentQty[condiment] = 0
	}
	for condiment, qty := range c.Condiments {
		if !slices.Contains(condiments, condiment) {
			return models.Line{}, models.NewValidationError(fmt.Sprintf("%q is not an available condiment", condiment))
		}
		condimentQty[condiment] = qty
	}
	line.Condiments = models.NewSelection(condimentQty)

	if err := line.Validate(); err != nil {
		return models.Line{}, err
	}
	return line, nil
}

// ExtraCondiments is the number of condiments beyond the free allowance.
func ExtraCondiments(line models.Line) int {
	return max(line.Condiments.Total()-FreeCondiments, 0)
}
