package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// AlpacaGateway implements Gateway against the Alpaca paper-trading REST API.
type AlpacaGateway struct {
	BaseURL string
	DataURL string
	Key     string
	Secret  string
	Client  *http.Client

	// Alpaca allows 200 requests/min; throttle below that.
	limiter *rate.Limiter
}

// NewAlpacaGateway creates a gateway with optional proxy support.
func NewAlpacaGateway(baseURL, key, secret, proxyURL string) *AlpacaGateway {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &AlpacaGateway{
		BaseURL: baseURL,
		DataURL: "https://data.alpaca.markets",
		Key:     key,
		Secret:  secret,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(3), 5),
	}
}

func (a *AlpacaGateway) Name() string { return "alpaca" }

func (a *AlpacaGateway) do(method, rawURL string, payload, out interface{}) (int, error) {
	if err := a.limiter.Wait(context.Background()); err != nil {
		return 0, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.Key)
	req.Header.Set("APCA-API-SECRET-KEY", a.Secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d, body: %s", method, rawURL, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", rawURL, err)
		}
	}
	return resp.StatusCode, nil
}

// CurrentPrice fetches the latest trade from the market data API.
func (a *AlpacaGateway) CurrentPrice(symbol string) (float64, error) {
	var result struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	u := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.DataURL, url.PathEscape(symbol))
	if _, err := a.do("GET", u, nil, &result); err != nil {
		return 0, err
	}
	if result.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", symbol)
	}
	return result.Trade.Price, nil
}

// Position returns the held position; a 404 means flat.
func (a *AlpacaGateway) Position(symbol string) (float64, int, error) {
	var pos struct {
		AvgEntryPrice string `json:"avg_entry_price"`
		Qty           string `json:"qty"`
	}
	u := fmt.Sprintf("%s/v2/positions/%s", a.BaseURL, url.PathEscape(symbol))
	status, err := a.do("GET", u, nil, &pos)
	if status == http.StatusNotFound {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	avg, err := strconv.ParseFloat(pos.AvgEntryPrice, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse avg_entry_price %q: %w", pos.AvgEntryPrice, err)
	}
	qtyF, err := strconv.ParseFloat(pos.Qty, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse qty %q: %w", pos.Qty, err)
	}
	return avg, int(qtyF), nil
}

// Cash returns the account's cash balance.
func (a *AlpacaGateway) Cash() (float64, error) {
	var account struct {
		Cash string `json:"cash"`
	}
	if _, err := a.do("GET", a.BaseURL+"/v2/account", nil, &account); err != nil {
		return 0, err
	}
	cash, err := strconv.ParseFloat(account.Cash, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cash %q: %w", account.Cash, err)
	}
	return cash, nil
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

func (a *AlpacaGateway) submit(symbol string, qty int, side string) error {
	if qty <= 0 {
		return fmt.Errorf("submit %s %s: quantity must be positive, got %d", side, symbol, qty)
	}
	order := orderRequest{
		Symbol:        symbol,
		Qty:           strconv.Itoa(qty),
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: uuid.NewString(),
	}
	_, err := a.do("POST", a.BaseURL+"/v2/orders", order, nil)
	return err
}

func (a *AlpacaGateway) SubmitBuy(symbol string, qty int) error {
	return a.submit(symbol, qty, "buy")
}

func (a *AlpacaGateway) SubmitSell(symbol string, qty int) error {
	return a.submit(symbol, qty, "sell")
}

// LiquidateAll closes every open position at market.
func (a *AlpacaGateway) LiquidateAll() error {
	_, err := a.do("DELETE", a.BaseURL+"/v2/positions", nil, nil)
	return err
}
