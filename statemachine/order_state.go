package statemachine

import (
	"errors"
	"strings"

	"meal-order-api/models"
)

// Transition defines a valid state change and who can perform it
type Transition struct {
	From  models.OrderStatus `json:"from"`
	To    models.OrderStatus `json:"to"`
	Actor string             `json:"actor"` // "admin" or "kitchen"
	Note  string             `json:"note"`
}

const (
	ActorAdmin   = "admin"
	ActorKitchen = "kitchen"
)

// validTransitions is the authoritative state machine definition.
// Kitchen transitions are derived from preparation flags, admin ones are explicit.
var validTransitions = []Transition{
	// Admin starts working on the order
	{From: models.StatusPending, To: models.StatusStarted, Actor: ActorAdmin, Note: "order started"},
	// Completed checkbox shortcut
	{From: models.StatusPending, To: models.StatusCompleted, Actor: ActorAdmin, Note: "marked completed"},
	{From: models.StatusStarted, To: models.StatusCompleted, Actor: ActorAdmin, Note: "marked completed"},
	{From: models.StatusCompleted, To: models.StatusPending, Actor: ActorAdmin, Note: "completion unchecked"},
	// Every flag prepared
	{From: models.StatusPending, To: models.StatusCompleted, Actor: ActorKitchen, Note: "all items prepared"},
	{From: models.StatusStarted, To: models.StatusCompleted, Actor: ActorKitchen, Note: "all items prepared"},
	// A flag was unset again
	{From: models.StatusCompleted, To: models.StatusPending, Actor: ActorKitchen, Note: "item no longer prepared"},
	{From: models.StatusCompleted, To: models.StatusStarted, Actor: ActorKitchen, Note: "item no longer prepared"},
}

// transitionKey is used to look up valid transitions quickly
type transitionKey struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Actor string
}

var transitionMap = func() map[transitionKey]Transition {
	m := make(map[transitionKey]Transition)
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.To, t.Actor}] = t
	}
	return m
}()

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	seen := map[models.OrderStatus]bool{}
	for _, t := range validTransitions {
		if t.From == status && !seen[t.To] {
			nexts = append(nexts, t.To)
			seen[t.To] = true
		}
	}
	return nexts
}

// CanTransition checks if a given actor can move from one state to another
func CanTransition(from, to models.OrderStatus, actor string) error {
	if _, ok := transitionMap[transitionKey{From: from, To: to, Actor: actor}]; ok {
		return nil
	}
	return errors.New(
		"invalid transition: " + string(from) + " → " + string(to) +
			" is not allowed for actor '" + actor + "'. " +
			"Valid transitions from " + string(from) + " are: " + describeValidFrom(from),
	)
}

// NoteFor returns the history note recorded for a transition.
func NoteFor(from, to models.OrderStatus, actor string) string {
	return transitionMap[transitionKey{From: from, To: to, Actor: actor}].Note
}

func describeValidFrom(status models.OrderStatus) string {
	nexts := ValidTransitionsFrom(status)
	if len(nexts) == 0 {
		return "none"
	}
	parts := make([]string, len(nexts))
	for i, s := range nexts {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}

// FullyPrepared reports whether every item of an order has all of its
// cooked and prepared flags set.
func FullyPrepared(items []models.OrderItem) bool {
	for _, item := range items {
		if !item.Prepared() {
			return false
		}
	}
	return true
}

// Recompute derives the order status after a preparation flag changed.
// started tells whether an admin explicitly started the order in the
// current cycle.
func Recompute(items []models.OrderItem, started bool) models.OrderStatus {
	switch {
	case FullyPrepared(items):
		return models.StatusCompleted
	case started:
		return models.StatusStarted
	default:
		return models.StatusPending
	}
}
