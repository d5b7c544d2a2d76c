// Package events describes data changes and fans them out to subscribers.
package events

import (
	"context"
	"time"
)

// Entity names the kind of record that changed.
type Entity string

const (
	EntityNote      Entity = "note"
	EntityExpense   Entity = "expense"
	EntityCategory  Entity = "category"
	EntityRecurring Entity = "recurring"
)

// Kind names what happened to the record.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Change is one data change notification.
type Change struct {
	Entity Entity    `json:"entity"`
	Kind   Kind      `json:"kind"`
	ID     int64     `json:"id,omitempty"`
	At     time.Time `json:"at"`
}

// NewChange stamps a change with the current time.
func NewChange(entity Entity, kind Kind, id int64) Change {
	return Change{Entity: entity, Kind: kind, ID: id, At: time.Now().UTC()}
}

// RoutingKey returns "<entity>.<kind>".
func (c Change) RoutingKey() string {
	return string(c.Entity) + "." + string(c.Kind)
}

// Publisher receives change notifications. Implementations must not block callers
// for long and must not fail the originating operation.
type Publisher interface {
	PublishChange(ctx context.Context, c Change)
}

// Discard drops every change.
type Discard struct{}

func (Discard) PublishChange(context.Context, Change) {}

// Fanout forwards each change to every publisher in order.
type Fanout []Publisher

func (f Fanout) PublishChange(ctx context.Context, c Change) {
	for _, p := range f {
		if p != nil {
			p.PublishChange(ctx, c)
		}
	}
}
