package model

import "time"

// Action is the side of a transaction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Transaction is an immutable audit record of one executed order.
type Transaction struct {
	Time     time.Time
	Action   Action
	Symbol   string
	Quantity int
	Price    float64
	Reason   string // human-readable trigger, e.g. "stop_loss", "layer_2"
}
