// Package bag holds a user's customized selections before checkout.
//
// A Bag is persisted on every mutation and rehydrated on open, so it
// survives restarts and page reloads. Content that cannot be decoded or
// fails validation is discarded and the bag starts empty.
package bag

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"meal-order-api/models"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Store is durable storage for serialized bags, one entry per key.
type Store interface {
	// Load returns nil data and nil error when nothing is stored under key.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrIndexOutOfRange = errors.New("bag index out of range")

// Bag is an ordered list of lines backed by a Store.
type Bag struct {
	mu     sync.Mutex
	key    string
	store  Store
	lines  []models.Line
	logger *zap.SugaredLogger
}

// Open rehydrates the bag stored under key.
func Open(ctx context.Context, store Store, key string, logger *zap.SugaredLogger) (*Bag, error) {
	b := &Bag{key: key, store: store, logger: logger}

	data, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load bag: %w", err)
	}
	if len(data) == 0 {
		return b, nil
	}

	lines, err := decode(data)
	if err != nil {
		logger.Warnw("discarding unreadable bag", "bag", key, "error", err)
		return b, nil
	}
	b.lines = lines
	return b, nil
}

func decode(data []byte) ([]models.Line, error) {
	var lines []models.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i] = lines[i].Normalized()
		if err := lines[i].Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}
	return lines, nil
}

// Lines returns a copy of the bag contents.
func (b *Bag) Lines() []models.Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Line, len(b.lines))
	for i, l := range b.lines {
		out[i] = l.Normalized()
	}
	return out
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Add appends a fully formed line.
func (b *Bag) Add(ctx context.Context, line models.Line) error {
	line = line.Normalized()
	if err := line.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.commit(ctx, append(slices.Clone(b.lines), line))
}

// Patch replaces the editable parts of a line. Nil fields are left as they are.
type Patch struct {
	Quantities map[string]int
	Quantity   *int
	AddOns     map[string]int
	Condiments map[string]int
	Notes      *string
}

// Edit applies p to the line at index. Selected names are always re-derived
// from the quantity maps.
func (b *Bag) Edit(ctx context.Context, index int, p Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.lines) {
		return ErrIndexOutOfRange
	}

	line := b.lines[index].Normalized()
	switch line.Type {
	case models.LineMeal:
		if p.Quantity != nil {
			return models.NewValidationError("meal lines have per-component quantities")
		}
		if p.Quantities != nil {
			for component := range p.Quantities {
				if _, ok := line.Meal.Quantities[component]; !ok {
					return models.NewValidationError(fmt.Sprintf("%q is not a component of %s", component, line.Name))
				}
			}
			maps.Copy(line.Meal.Quantities, p.Quantities)
		}
		if p.Notes != nil {
			line.Meal.Notes = *p.Notes
		}
	case models.LineBeverage:
		if p.Quantities != nil || p.Notes != nil {
			return models.NewValidationError("beverage lines only have a quantity")
		}
		if p.Quantity != nil {
			line.Beverage.Quantity = *p.Quantity
		}
	}
	if p.AddOns != nil {
		if err := knownNames(line.AddOns, p.AddOns, "an add-on of "+line.Name); err != nil {
			return err
		}
		line.AddOns = mergeSelection(line.AddOns, p.AddOns)
	}
	if p.Condiments != nil {
		if err := knownNames(line.Condiments, p.Condiments, "an available condiment"); err != nil {
			return err
		}
		line.Condiments = mergeSelection(line.Condiments, p.Condiments)
	}

	if err := line.Validate(); err != nil {
		return err
	}

	lines := slices.Clone(b.lines)
	lines[index] = line
	return b.commit(ctx, lines)
}

// knownNames rejects names the line was not built with. NewLine seeds every
// allowed add-on and condiment at quantity zero.
func knownNames(s models.Selection, quantities map[string]int, what string) error {
	for name := range quantities {
		if _, ok := s.Quantities[name]; !ok {
			return models.NewValidationError(fmt.Sprintf("%q is not %s", name, what))
		}
	}
	return nil
}

func mergeSelection(s models.Selection, quantities map[string]int) models.Selection {
	q := maps.Clone(s.Quantities)
	if q == nil {
		q = map[string]int{}
	}
	maps.Copy(q, quantities)
	return models.NewSelection(q)
}

// Target names what an Adjustment changes.
type Target string

const (
	TargetComponent Target = "component"
	TargetQuantity  Target = "quantity"
	TargetAddOn     Target = "add_on"
	TargetCondiment Target = "condiment"
)

// Adjustment increments or decrements a single quantity of a line.
type Adjustment struct {
	Target Target
	Name   string
	Delta  int
}

// Adjust applies a single increment or decrement. Beverage quantities stop
// at one, add-ons and condiments at zero. A component may not drop below one.
func (b *Bag) Adjust(ctx context.Context, index int, a Adjustment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.lines) {
		return ErrIndexOutOfRange
	}

	line := b.lines[index].Normalized()
	switch a.Target {
	case TargetComponent:
		if line.Meal == nil {
			return models.NewValidationError("beverage lines have no components")
		}
		qty, ok := line.Meal.Quantities[a.Name]
		if !ok {
			return models.NewValidationError(fmt.Sprintf("%q is not a component of %s", a.Name, line.Name))
		}
		line.Meal.Quantities[a.Name] = max(qty+a.Delta, 0)
	case TargetQuantity:
		if line.Beverage == nil {
			return models.NewValidationError("meal lines have per-component quantities")
		}
		line.Beverage.Quantity = max(line.Beverage.Quantity+a.Delta, 1)
	case TargetAddOn:
		if _, ok := line.AddOns.Quantities[a.Name]; !ok {
			return models.NewValidationError(fmt.Sprintf("%q is not an add-on of %s", a.Name, line.Name))
		}
		line.AddOns = line.AddOns.Adjust(a.Name, a.Delta)
	case TargetCondiment:
		if _, ok := line.Condiments.Quantities[a.Name]; !ok {
			return models.NewValidationError(fmt.Sprintf("%q is not an available condiment", a.Name))
		}
		line.Condiments = line.Condiments.Adjust(a.Name, a.Delta)
	default:
		return models.NewValidationError(fmt.Sprintf("unknown adjustment target %q", a.Target))
	}

	if err := line.Validate(); err != nil {
		return err
	}

	lines := slices.Clone(b.lines)
	lines[index] = line
	return b.commit(ctx, lines)
}

// Remove deletes the line at index, keeping the order of the others.
func (b *Bag) Remove(ctx context.Context, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.lines) {
		return ErrIndexOutOfRange
	}
	return b.commit(ctx, slices.Delete(slices.Clone(b.lines), index, index+1))
}

// Clear empties the bag and drops its stored copy.
func (b *Bag) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.Delete(ctx, b.key); err != nil {
		return fmt.Errorf("failed to clear bag: %w", err)
	}
	b.lines = nil
	return nil
}

// Take removes lines that were just placed as an order. The stored bag is
// reloaded first, so lines saved from another session after placed was read
// are kept.
func (b *Bag) Take(ctx context.Context, placed []models.Line) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.store.Load(ctx, b.key)
	if err != nil {
		return fmt.Errorf("failed to reload bag: %w", err)
	}
	var stored []models.Line
	if len(data) > 0 {
		if stored, err = decode(data); err != nil {
			b.logger.Warnw("discarding unreadable bag", "bag", b.key, "error", err)
			stored = nil
		}
	}

	remaining, err := without(stored, placed)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if err := b.store.Delete(ctx, b.key); err != nil {
			return fmt.Errorf("failed to clear bag: %w", err)
		}
		b.lines = nil
		return nil
	}
	return b.commit(ctx, remaining)
}

// without drops one stored line for every placed line with the same content.
func without(stored, placed []models.Line) ([]models.Line, error) {
	pending := make([]string, len(placed))
	for i, l := range placed {
		key, err := lineKey(l)
		if err != nil {
			return nil, err
		}
		pending[i] = key
	}

	var out []models.Line
	for _, l := range stored {
		key, err := lineKey(l)
		if err != nil {
			return nil, err
		}
		if i := slices.Index(pending, key); i >= 0 {
			pending = slices.Delete(pending, i, i+1)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func lineKey(l models.Line) (string, error) {
	data, err := json.Marshal(l.Normalized())
	if err != nil {
		return "", fmt.Errorf("failed to encode line: %w", err)
	}
	return string(data), nil
}

// commit persists lines and only then makes them the current contents.
func (b *Bag) commit(ctx context.Context, lines []models.Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode bag: %w", err)
	}
	if err := b.store.Save(ctx, b.key, data); err != nil {
		return fmt.Errorf("failed to save bag: %w", err)
	}
	b.lines = lines
	return nil
}
