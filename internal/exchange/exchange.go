// Package exchange is the currency-conversion boundary of the ledger.
// Rate sourcing lives outside the core; the ledger only needs a pluggable
// converter that either succeeds with a Money in the target currency or
// fails loudly when no converter is installed.
package exchange

import (
	"context"
	"errors"
	"sync"

	"github.com/zek/abone/internal/money"
	"go.uber.org/fx"
)

var ErrNoExchanger = errors.New("no_exchange_method_set")

// Exchanger converts an amount into the target currency.
type Exchanger interface {
	Convert(ctx context.Context, amount money.Money, currency string) (money.Money, error)
}

// ExchangerFunc adapts a plain function to the Exchanger interface.
type ExchangerFunc func(ctx context.Context, amount money.Money, currency string) (money.Money, error)

func (f ExchangerFunc) Convert(ctx context.Context, amount money.Money, currency string) (money.Money, error) {
	return f(ctx, amount, currency)
}

// Gateway holds the process-wide converter. It is provided once through fx
// rather than mutable package state so tests can install fakes per instance.
type Gateway struct {
	mu       sync.RWMutex
	exchange Exchanger
}

func NewGateway() *Gateway {
	return &Gateway{}
}

// SetExchanger installs or replaces the converter.
func (g *Gateway) SetExchanger(e Exchanger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exchange = e
}

func (g *Gateway) Convert(ctx context.Context, amount money.Money, currency string) (money.Money, error) {
	g.mu.RLock()
	e := g.exchange
	g.mu.RUnlock()

	if e == nil {
		return money.Money{}, ErrNoExchanger
	}
	return e.Convert(ctx, amount, currency)
}

var Module = fx.Module("exchange",
	fx.Provide(NewGateway),
)
