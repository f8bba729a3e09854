package broker

import "fmt"

// PaperGateway is an in-memory gateway used for development and tests.
// Orders fill immediately and in full at the currently set price.
type PaperGateway struct {
	Prices    map[string]float64
	CashValue float64
	holdings  map[string]*paperHolding

	// Optional fault injection.
	PriceErr map[string]error
	OrderErr error
	CashErr  error
}

type paperHolding struct {
	qty       int
	costBasis float64
}

// NewPaperGateway creates a simulated account with the given starting cash.
func NewPaperGateway(cash float64) *PaperGateway {
	return &PaperGateway{
		Prices:    make(map[string]float64),
		CashValue: cash,
		holdings:  make(map[string]*paperHolding),
		PriceErr:  make(map[string]error),
	}
}

func (p *PaperGateway) Name() string { return "paper" }

// SetPrice sets the simulated last trade price for a symbol.
func (p *PaperGateway) SetPrice(symbol string, price float64) {
	p.Prices[symbol] = price
}

func (p *PaperGateway) CurrentPrice(symbol string) (float64, error) {
	if err := p.PriceErr[symbol]; err != nil {
		return 0, err
	}
	price, ok := p.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

func (p *PaperGateway) Position(symbol string) (float64, int, error) {
	h, ok := p.holdings[symbol]
	if !ok || h.qty == 0 {
		return 0, 0, nil
	}
	return h.costBasis / float64(h.qty), h.qty, nil
}

func (p *PaperGateway) Cash() (float64, error) {
	if p.CashErr != nil {
		return 0, p.CashErr
	}
	return p.CashValue, nil
}

func (p *PaperGateway) SubmitBuy(symbol string, qty int) error {
	if p.OrderErr != nil {
		return p.OrderErr
	}
	price, err := p.CurrentPrice(symbol)
	if err != nil {
		return err
	}
	cost := price * float64(qty)
	if cost > p.CashValue {
		return fmt.Errorf("paper: insufficient cash for %d %s (need %.2f, have %.2f)",
			qty, symbol, cost, p.CashValue)
	}
	h, ok := p.holdings[symbol]
	if !ok {
		h = &paperHolding{}
		p.holdings[symbol] = h
	}
	h.qty += qty
	h.costBasis += cost
	p.CashValue -= cost
	return nil
}

func (p *PaperGateway) SubmitSell(symbol string, qty int) error {
	if p.OrderErr != nil {
		return p.OrderErr
	}
	h, ok := p.holdings[symbol]
	if !ok || h.qty < qty {
		return fmt.Errorf("paper: cannot sell %d %s", qty, symbol)
	}
	price, err := p.CurrentPrice(symbol)
	if err != nil {
		return err
	}
	avg := h.costBasis / float64(h.qty)
	h.qty -= qty
	h.costBasis = avg * float64(h.qty)
	p.CashValue += price * float64(qty)
	return nil
}

func (p *PaperGateway) LiquidateAll() error {
	for symbol, h := range p.holdings {
		if h.qty > 0 {
			if err := p.SubmitSell(symbol, h.qty); err != nil {
				return err
			}
		}
	}
	return nil
}
