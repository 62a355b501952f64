// Package catalog defines the offering side of the entitlement engine: the
// identity scheme for polymorphic references, the contract a subscribable
// offering must satisfy, and the coupon/feature values attached to it.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/money"
	"go.uber.org/fx"
)

var ErrUnknownOffering = errors.New("unknown_offering")

// EntityRef identifies an external entity by an explicit kind discriminator
// plus identifier. It replaces dynamic type resolution for transaction
// references and subscription subscriber/subscribable links.
type EntityRef struct {
	Kind string       `json:"kind"`
	ID   snowflake.ID `json:"id"`
}

func NewRef(kind string, id snowflake.ID) EntityRef {
	return EntityRef{Kind: kind, ID: id}
}

func (r EntityRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

func (r EntityRef) Equal(other EntityRef) bool {
	return r.Kind == other.Kind && r.ID == other.ID
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Offering is a subscribable product looked up by the entitlement engine:
// a price, a renewal interval, a feature set and a concurrency policy.
type Offering interface {
	Ref() EntityRef
	SubscriptionPrice() money.Money
	SubscriptionInterval() Interval
	Features() map[string]Feature
	// AllowsMultiple reports whether a subscriber may hold several
	// concurrent subscriptions to different instances of this offering kind.
	AllowsMultiple() bool
}

// Registry resolves offerings by EntityRef, one namespace per kind.
type Registry struct {
	mu        sync.RWMutex
	offerings map[EntityRef]Offering
}

func NewRegistry() *Registry {
	return &Registry{offerings: make(map[EntityRef]Offering)}
}

func (r *Registry) Register(o Offering) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offerings[o.Ref()] = o
}

func (r *Registry) Resolve(ref EntityRef) (Offering, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.offerings[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOffering, ref)
	}
	return o, nil
}

// Plan is a static Offering backed by plain fields. Applications register
// their plans at startup; tests use it as a fixture.
type Plan struct {
	Kind     string
	ID       snowflake.ID
	Name     string
	Price    money.Money
	Interval Interval
	Multiple bool
	Feats    map[string]Feature
}

func (p *Plan) Ref() EntityRef                 { return EntityRef{Kind: p.Kind, ID: p.ID} }
func (p *Plan) SubscriptionPrice() money.Money { return p.Price }
func (p *Plan) SubscriptionInterval() Interval { return p.Interval }
func (p *Plan) AllowsMultiple() bool           { return p.Multiple }

func (p *Plan) Features() map[string]Feature {
	if p.Feats == nil {
		return map[string]Feature{}
	}
	return p.Feats
}

var Module = fx.Module("catalog",
	fx.Provide(NewRegistry),
)
