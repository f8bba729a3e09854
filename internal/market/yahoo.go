package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// YahooProvider implements HistoryProvider and IndexQuoter against the Yahoo
// Finance public chart API.
type YahooProvider struct {
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooProvider creates a provider with optional proxy support.
func NewYahooProvider(proxyURL string) *YahooProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooProvider{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"VIX": "^VIX",
		},
	}
}

func (y *YahooProvider) yahooSymbol(symbol string) string {
	if mapped, ok := y.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func (y *YahooProvider) fetchCloses(symbol, rng string) ([]float64, error) {
	u := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=1d&range=%s",
		url.PathEscape(y.yahooSymbol(symbol)), rng)

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	raw := chart.Chart.Result[0].Indicators.Quote[0].Close
	closes := make([]float64, 0, len(raw))
	for _, v := range raw {
		c := toFloat(v)
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		closes = append(closes, c)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("yahoo: no usable closes for %s", symbol)
	}
	return closes, nil
}

// Closes returns up to `days` most recent daily closes, oldest first.
func (y *YahooProvider) Closes(symbol string, days int) ([]float64, error) {
	rng := "2y"
	switch {
	case days <= 30:
		rng = "3mo" // padding for holidays
	case days <= 90:
		rng = "6mo"
	case days <= 250:
		rng = "1y"
	}
	closes, err := y.fetchCloses(symbol, rng)
	if err != nil {
		return nil, err
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// DayChange returns the latest close and its fractional change from the
// prior close.
func (y *YahooProvider) DayChange(symbol string) (float64, float64, error) {
	closes, err := y.fetchCloses(symbol, "5d")
	if err != nil {
		return 0, 0, err
	}
	if len(closes) < 2 {
		return 0, 0, fmt.Errorf("yahoo: need two closes for %s, got %d", symbol, len(closes))
	}
	cur := closes[len(closes)-1]
	prev := closes[len(closes)-2]
	return cur, (cur - prev) / prev, nil
}
