package strategy

import (
	"fmt"
	"time"

	"LayerTrader/internal/broker"
	"LayerTrader/internal/config"
	"LayerTrader/internal/model"
	"LayerTrader/internal/risk"
)

// Sizer turns a target cash fraction into a broker-eligible buy order,
// folding in sentiment multipliers, the market-regime multiplier, the
// symbol's capital-allocation weight, and the risk manager's caps.
type Sizer struct {
	cfg     *config.Config
	gateway broker.Gateway
	risk    *risk.Manager
}

// NewSizer creates a Sizer.
func NewSizer(cfg *config.Config, gateway broker.Gateway, rm *risk.Manager) *Sizer {
	return &Sizer{cfg: cfg, gateway: gateway, risk: rm}
}

// SizeOrder submits a market buy sized from baseFraction of available cash.
// Returns nil without error when the clamped quantity is zero. The position
// cache is updated if and only if the broker accepted the order.
func (s *Sizer) SizeOrder(symbol string, baseFraction float64, cat model.SentimentCategory, regime model.Regime) (*model.Transaction, error) {
	fraction := baseFraction

	switch cat {
	case model.SentimentStrongBuy:
		fraction *= s.cfg.Strategy.ExtremeFearBoost
	case model.SentimentBuy:
		fraction *= 1.2
	case model.SentimentSell:
		fraction *= 0.8
	}

	switch regime {
	case model.RegimeStrong:
		fraction *= 1.2
	case model.RegimeWeak:
		fraction *= 0.8
	}

	fraction *= s.cfg.Weight(symbol)

	price, err := s.gateway.CurrentPrice(symbol)
	if err != nil {
		return nil, fmt.Errorf("size order %s: %w", symbol, err)
	}
	cash, err := s.gateway.Cash()
	if err != nil {
		return nil, fmt.Errorf("size order %s: %w", symbol, err)
	}

	qty := int(fraction * cash / price)
	if qty <= 0 {
		return nil, nil
	}

	qty, err = s.risk.PositionSizeCap(symbol, price, qty)
	if err != nil {
		return nil, fmt.Errorf("size order %s: %w", symbol, err)
	}
	if qty <= 0 {
		return nil, nil
	}

	if err := s.gateway.SubmitBuy(symbol, qty); err != nil {
		return nil, fmt.Errorf("submit buy %s x%d: %w", symbol, qty, err)
	}
	s.risk.RecordPositionDelta(symbol, price, qty)

	return &model.Transaction{
		Time:     time.Now(),
		Action:   model.ActionBuy,
		Symbol:   symbol,
		Quantity: qty,
		Price:    price,
	}, nil
}
