package broker

// Gateway is the order-execution and account-query boundary. Every call hits
// the broker synchronously and may fail with a transport or auth error; the
// caller skips the affected symbol or cycle and retries on the next tick.
type Gateway interface {
	// CurrentPrice returns the last observed trade price.
	CurrentPrice(symbol string) (float64, error)
	// Position returns the average entry cost and quantity held.
	// A symbol with no holding reports (0, 0) without error.
	Position(symbol string) (avgCost float64, qty int, err error)
	// Cash returns the available cash balance.
	Cash() (float64, error)
	// SubmitBuy places a market buy. A nil error means the order was accepted.
	SubmitBuy(symbol string, qty int) error
	// SubmitSell places a market sell. A nil error means the order was accepted.
	SubmitSell(symbol string, qty int) error
	// LiquidateAll closes every open position.
	LiquidateAll() error
	// Name identifies the gateway implementation for logging.
	Name() string
}
