package model

// SentimentCategory is the discretized fear & greed signal. The scale is
// inverted relative to the raw score: a low score (fear) is buy pressure.
type SentimentCategory int

const (
	SentimentStrongBuy SentimentCategory = iota
	SentimentBuy
	SentimentNeutral
	SentimentSell
	SentimentStrongSell
)

func (c SentimentCategory) String() string {
	switch c {
	case SentimentStrongBuy:
		return "STRONG_BUY"
	case SentimentBuy:
		return "BUY"
	case SentimentNeutral:
		return "NEUTRAL"
	case SentimentSell:
		return "SELL"
	case SentimentStrongSell:
		return "STRONG_SELL"
	default:
		return "UNKNOWN"
	}
}

// Crossover is the moving-average trend-reversal signal.
type Crossover int

const (
	CrossoverNone Crossover = iota
	CrossoverGolden
	CrossoverDeath
)

func (c Crossover) String() string {
	switch c {
	case CrossoverGolden:
		return "GOLDEN_CROSS"
	case CrossoverDeath:
		return "DEATH_CROSS"
	default:
		return "NONE"
	}
}

// Regime is the coarse market-breadth classification.
type Regime int

const (
	RegimeNeutral Regime = iota
	RegimeStrong
	RegimeWeak
)

func (r Regime) String() string {
	switch r {
	case RegimeStrong:
		return "STRONG"
	case RegimeWeak:
		return "WEAK"
	default:
		return "NEUTRAL"
	}
}
