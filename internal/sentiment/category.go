package sentiment

import "LayerTrader/internal/model"

// Category maps a 0-100 fear & greed score to a trade signal. Low scores are
// fear, which this strategy treats as buy pressure.
func Category(score int) model.SentimentCategory {
	switch {
	case score <= 25:
		return model.SentimentStrongBuy
	case score <= 40:
		return model.SentimentBuy
	case score <= 60:
		return model.SentimentNeutral
	case score <= 80:
		return model.SentimentSell
	default:
		return model.SentimentStrongSell
	}
}

// Rating returns the display label CNN attaches to a score.
func Rating(score int) string {
	switch {
	case score <= 25:
		return "Extreme Fear"
	case score <= 45:
		return "Fear"
	case score <= 55:
		return "Neutral"
	case score <= 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
