package market

import (
	"log"
	"time"

	"LayerTrader/internal/model"
	"LayerTrader/internal/sentiment"
)

// Monitor classifies overall market conditions from a handful of broad
// indexes plus the fear & greed index. Results are cached for a short TTL so
// every symbol in a cycle shares one assessment.
type Monitor struct {
	Quoter    IndexQuoter
	Sentiment sentiment.Provider

	cacheTTL    time.Duration
	cachedAt    time.Time
	cachedState Assessment
}

// Assessment is one breadth reading.
type Assessment struct {
	Regime    model.Regime
	Strength  int // integer score, positive = risk-on
	FearGreed int // -1 when unavailable
}

// NewMonitor creates a Monitor with a five-minute assessment cache.
func NewMonitor(quoter IndexQuoter, sp sentiment.Provider) *Monitor {
	return &Monitor{Quoter: quoter, Sentiment: sp, cacheTTL: 5 * time.Minute}
}

// Assess computes the current market regime. Individual index failures are
// logged and skipped rather than failing the whole assessment.
func (m *Monitor) Assess() Assessment {
	if !m.cachedAt.IsZero() && time.Since(m.cachedAt) < m.cacheTTL {
		return m.cachedState
	}

	strength := 0

	for _, idx := range []string{"SPY", "QQQ"} {
		_, change, err := m.Quoter.DayChange(idx)
		if err != nil {
			log.Printf("[WARN] breadth quote %s: %v", idx, err)
			continue
		}
		if change > 0.01 {
			strength++
		} else if change < -0.01 {
			strength--
		}
	}

	if vix, _, err := m.Quoter.DayChange("VIX"); err != nil {
		log.Printf("[WARN] breadth quote VIX: %v", err)
	} else if vix > 30 {
		strength--
	} else if vix < 15 {
		strength++
	}

	fg := -1
	if m.Sentiment != nil {
		if score, err := m.Sentiment.Score(); err != nil {
			log.Printf("[WARN] breadth fear/greed: %v", err)
		} else {
			fg = score
			// Extremes lean contrarian: deep fear is accumulation territory.
			switch {
			case score <= 25:
				strength += 2
			case score <= 40:
				strength++
			case score >= 80:
				strength -= 2
			case score >= 60:
				strength--
			}
		}
	}

	regime := model.RegimeNeutral
	if strength >= 2 {
		regime = model.RegimeStrong
	} else if strength <= -2 {
		regime = model.RegimeWeak
	}

	m.cachedState = Assessment{Regime: regime, Strength: strength, FearGreed: fg}
	m.cachedAt = time.Now()
	return m.cachedState
}
