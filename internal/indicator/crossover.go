package indicator

import "LayerTrader/internal/model"

// Crossover detects a moving-average crossover between the short and long
// windows over the supplied close prices (oldest first). A golden cross is
// reported when the short average was at or below the long average on the
// prior bar and is above it on the current bar; a death cross is the
// symmetric opposite.
//
// Fails closed: with fewer than max(short,long)+2 bars there is no prior bar
// to compare against and the result is CrossoverNone.
func Crossover(closes []float64, shortWindow, longWindow int) model.Crossover {
	need := longWindow
	if shortWindow > need {
		need = shortWindow
	}
	if shortWindow <= 0 || longWindow <= 0 || len(closes) < need+2 {
		return model.CrossoverNone
	}

	prev := closes[:len(closes)-1]
	prevShort, err := SMA(prev, shortWindow)
	if err != nil {
		return model.CrossoverNone
	}
	prevLong, err := SMA(prev, longWindow)
	if err != nil {
		return model.CrossoverNone
	}
	curShort, err := SMA(closes, shortWindow)
	if err != nil {
		return model.CrossoverNone
	}
	curLong, err := SMA(closes, longWindow)
	if err != nil {
		return model.CrossoverNone
	}

	switch {
	case prevShort <= prevLong && curShort > curLong:
		return model.CrossoverGolden
	case prevShort >= prevLong && curShort < curLong:
		return model.CrossoverDeath
	default:
		return model.CrossoverNone
	}
}
