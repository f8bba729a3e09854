package model

// Position tracks the volume-weighted cost of one symbol's holding.
type Position struct {
	Symbol       string
	EntryPrice   float64 // volume-weighted average cost
	Quantity     int
	CostBasis    float64 // EntryPrice * Quantity, maintained incrementally
	HighestPrice float64 // high-water mark since entry, drives the trailing stop
}

// Flat reports whether the position holds no shares.
func (p Position) Flat() bool { return p.Quantity <= 0 }

// MarketValue returns the position value at the given price.
func (p *Position) MarketValue(price float64) float64 {
	return price * float64(p.Quantity)
}

// ApplyFill merges a buy fill into the position using a volume-weighted
// average cost update.
func (p *Position) ApplyFill(price float64, qty int) {
	p.CostBasis += price * float64(qty)
	p.Quantity += qty
	if p.Quantity > 0 {
		p.EntryPrice = p.CostBasis / float64(p.Quantity)
	}
	if p.HighestPrice == 0 || price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// Reduce removes qty shares. A full or over-close zeroes the position.
func (p *Position) Reduce(qty int) {
	p.Quantity -= qty
	if p.Quantity <= 0 {
		p.Quantity = 0
		p.CostBasis = 0
		p.EntryPrice = 0
		p.HighestPrice = 0
		return
	}
	p.CostBasis = p.EntryPrice * float64(p.Quantity)
}
