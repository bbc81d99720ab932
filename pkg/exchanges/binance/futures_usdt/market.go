package futures_usdt

import (
	"context"
)

// ExchangeInfo fetches the instrument list with trading filters.
func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info ExchangeInfo
	if err := decode(body, &info, "exchange info"); err != nil {
		return nil, err
	}
	return &info, nil
}

// TickerPrices returns last prices. With no symbols every instrument is returned.
func (c *Client) TickerPrices(ctx context.Context, symbols ...string) (map[string]float64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/ticker/price", nil)
	if err != nil {
		return nil, err
	}
	var rows []tickerPrice
	if err := decode(body, &rows, "ticker prices"); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		if len(want) > 0 {
			if _, ok := want[r.Symbol]; !ok {
				continue
			}
		}
		out[r.Symbol] = parseFloat(r.Price)
	}
	return out, nil
}

// ServerTime fetches futures server time in ms.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := decode(body, &res, "server time"); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}
