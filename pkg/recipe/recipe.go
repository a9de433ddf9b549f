// Package recipe describes the fixed conversions a production step runs.
package recipe

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dd0wney/procline/pkg/validation"
)

// Item identifies a resource type. Items carry no behaviour beyond equality.
type Item string

// ErrInvalid is returned when a recipe fails validation.
var ErrInvalid = errors.New("invalid recipe")

// Recipe is an immutable conversion of consumed items into produced items
// over one cycle of Duration ticks, drawing Power while running.
type Recipe struct {
	Name     string           `validate:"omitempty,name"`
	Consume  map[Item]float64 `validate:"dive,gt=0"`
	Produce  map[Item]float64 `validate:"dive,gt=0"`
	Duration float64          `validate:"gt=0"`
	Power    float64          `validate:"gte=0"`

	consumed []Item
	produced []Item
}

// New copies the given maps into a validated Recipe.
func New(name string, consume, produce map[Item]float64, duration, power float64) (*Recipe, error) {
	r := &Recipe{
		Name:     name,
		Consume:  make(map[Item]float64, len(consume)),
		Produce:  make(map[Item]float64, len(produce)),
		Duration: duration,
		Power:    power,
	}
	for item, qty := range consume {
		r.Consume[item] = qty
	}
	for item, qty := range produce {
		r.Produce[item] = qty
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.consumed = sortedItems(r.Consume)
	r.produced = sortedItems(r.Produce)
	return r, nil
}

// MustNew is New for statically known recipes; it panics on invalid input.
func MustNew(name string, consume, produce map[Item]float64, duration, power float64) *Recipe {
	r, err := New(name, consume, produce, duration, power)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the recipe invariants.
func (r *Recipe) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil recipe", ErrInvalid)
	}
	if err := validation.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(r.Consume)+len(r.Produce) == 0 {
		return fmt.Errorf("%w: %q neither consumes nor produces anything", ErrInvalid, r.Name)
	}
	for item := range r.Consume {
		if item == "" {
			return fmt.Errorf("%w: %q has an empty item name", ErrInvalid, r.Name)
		}
		if _, ok := r.Produce[item]; ok {
			return fmt.Errorf("%w: %q both consumes and produces %s", ErrInvalid, r.Name, item)
		}
	}
	for item := range r.Produce {
		if item == "" {
			return fmt.Errorf("%w: %q has an empty item name", ErrInvalid, r.Name)
		}
	}
	return nil
}

// InRate is the amount of item consumed per tick at rate 1.
func (r *Recipe) InRate(item Item) float64 {
	return r.Consume[item] / r.Duration
}

// OutRate is the amount of item produced per tick at rate 1.
func (r *Recipe) OutRate(item Item) float64 {
	return r.Produce[item] / r.Duration
}

// Consumes reports whether the recipe takes item as an input.
func (r *Recipe) Consumes(item Item) bool {
	_, ok := r.Consume[item]
	return ok
}

// Produces reports whether the recipe yields item as an output.
func (r *Recipe) Produces(item Item) bool {
	_, ok := r.Produce[item]
	return ok
}

// ConsumedItems returns the inputs in sorted order.
func (r *Recipe) ConsumedItems() []Item {
	if r.consumed == nil {
		r.consumed = sortedItems(r.Consume)
	}
	return r.consumed
}

// ProducedItems returns the outputs in sorted order.
func (r *Recipe) ProducedItems() []Item {
	if r.produced == nil {
		r.produced = sortedItems(r.Produce)
	}
	return r.produced
}

func (r *Recipe) String() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%v -> %v", r.ConsumedItems(), r.ProducedItems())
}

func sortedItems(m map[Item]float64) []Item {
	items := make([]Item, 0, len(m))
	for item := range m {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}
